package wire

import (
	"encoding/binary"
	"fmt"
)

// UserInfoSize is the wire size of one user-info record.
const UserInfoSize = 4 + 1 + NameSize

// NameSize is the fixed width of a right-zero-padded ASCII username
// field inside a UserInfo record.
const NameSize = 16

// UserInfo is one entry of a FETCH_USERS response.
type UserInfo struct {
	ID        uint32
	Connected bool
	Name      [NameSize]byte
}

// PackUserInfo marshals u into a new UserInfoSize-byte buffer.
func PackUserInfo(u *UserInfo) []byte {
	buf := make([]byte, UserInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], u.ID)
	if u.Connected {
		buf[4] = 1
	}
	copy(buf[5:], u.Name[:])
	return buf
}

// UnpackUserInfo parses a UserInfoSize-byte buffer into a UserInfo.
func UnpackUserInfo(buf []byte) (*UserInfo, error) {
	if len(buf) != UserInfoSize {
		return nil, fmt.Errorf("%w: user-info length %d, want %d", ErrMalformedFrame, len(buf), UserInfoSize)
	}
	u := &UserInfo{
		ID:        binary.LittleEndian.Uint32(buf[0:4]),
		Connected: buf[4] != 0,
	}
	copy(u.Name[:], buf[5:])
	return u, nil
}

// NameFromString right-pads s with zero bytes to NameSize, truncating
// if s is too long.
func NameFromString(s string) [NameSize]byte {
	var out [NameSize]byte
	copy(out[:], s)
	return out
}

// NameToString returns a fixed name field up to, not including, its
// first zero byte (the whole field when it has none).
func NameToString(name [NameSize]byte) string {
	i := 0
	for i < len(name) && name[i] != 0 {
		i++
	}
	return string(name[:i])
}

// UnpackUserInfoList splits a concatenated buffer of full records into
// individual UserInfo values, used when assembling a multi-part
// FETCH_USERS response (spec.md §4.4.4).
func UnpackUserInfoList(buf []byte) ([]*UserInfo, error) {
	if len(buf)%UserInfoSize != 0 {
		return nil, fmt.Errorf("%w: user-info list length %d not a multiple of %d", ErrMalformedFrame, len(buf), UserInfoSize)
	}
	count := len(buf) / UserInfoSize
	out := make([]*UserInfo, count)
	for i := 0; i < count; i++ {
		u, err := UnpackUserInfo(buf[i*UserInfoSize : (i+1)*UserInfoSize])
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}
