package wire

import "testing"

func TestUserInfoRoundTrip(t *testing.T) {
	u := &UserInfo{ID: 42, Connected: true, Name: NameFromString("alice")}
	buf := PackUserInfo(u)
	if len(buf) != UserInfoSize {
		t.Fatalf("PackUserInfo length = %d, want %d", len(buf), UserInfoSize)
	}

	got, err := UnpackUserInfo(buf)
	if err != nil {
		t.Fatalf("UnpackUserInfo: %v", err)
	}
	if got.ID != u.ID || got.Connected != u.Connected || NameToString(got.Name) != "alice" {
		t.Fatalf("UnpackUserInfo = %+v, want %+v", got, u)
	}
}

func TestUserInfoListRoundTrip(t *testing.T) {
	users := []*UserInfo{
		{ID: 1, Connected: true, Name: NameFromString("alice")},
		{ID: 2, Connected: false, Name: NameFromString("bob")},
		{ID: 3, Connected: true, Name: NameFromString("carolinexxxxxxxx")}, // exactly 16 bytes
	}
	var buf []byte
	for _, u := range users {
		buf = append(buf, PackUserInfo(u)...)
	}

	got, err := UnpackUserInfoList(buf)
	if err != nil {
		t.Fatalf("UnpackUserInfoList: %v", err)
	}
	if len(got) != len(users) {
		t.Fatalf("got %d users, want %d", len(got), len(users))
	}
	for i, u := range users {
		if got[i].ID != u.ID || got[i].Connected != u.Connected {
			t.Fatalf("user %d = %+v, want %+v", i, got[i], u)
		}
	}
}

func TestUserInfoListRejectsPartialRecord(t *testing.T) {
	if _, err := UnpackUserInfoList(make([]byte, UserInfoSize+1)); err == nil {
		t.Fatal("expected error for length not a multiple of UserInfoSize")
	}
}

func TestNameFromStringTruncatesAndPads(t *testing.T) {
	n := NameFromString("ab")
	if n[0] != 'a' || n[1] != 'b' || n[2] != 0 {
		t.Fatalf("NameFromString did not zero-pad: %v", n)
	}
	if NameToString(n) != "ab" {
		t.Fatalf("NameToString = %q, want %q", NameToString(n), "ab")
	}

	long := "abcdefghijklmnopqrs"
	if got := NameToString(NameFromString(long)); got != long[:NameSize] {
		t.Fatalf("NameFromString did not truncate: %q, want %q", got, long[:NameSize])
	}
}
