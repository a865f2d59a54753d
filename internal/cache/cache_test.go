package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(true)
	etag := c.Set("sender-1:streak:", []byte(`{"streak":3}`), time.Minute)
	if etag == "" {
		t.Fatal("Set returned empty etag")
	}

	data, gotETag, ok := c.Get("sender-1:streak:")
	if !ok {
		t.Fatal("Get missed a fresh entry")
	}
	if string(data) != `{"streak":3}` || gotETag != etag {
		t.Errorf("Get = (%q, %q), want original data and etag", data, gotETag)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(true)
	c.Set("key", []byte("v"), -time.Second)
	if _, _, ok := c.Get("key"); ok {
		t.Error("expired entry still served")
	}
}

func TestCache_Disabled(t *testing.T) {
	c := New(false)
	if etag := c.Set("key", []byte("v"), time.Minute); etag == "" {
		t.Error("disabled cache must still compute etags")
	}
	if _, _, ok := c.Get("key"); ok {
		t.Error("disabled cache returned a hit")
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New(true)
	c.Set(Key("sender-1", "streak", ""), []byte("a"), time.Minute)
	c.Set(Key("sender-1", "today"), []byte("b"), time.Minute)
	c.Set(Key("sender-2", "today"), []byte("c"), time.Minute)

	c.InvalidatePrefix("sender-1")

	if _, _, ok := c.Get(Key("sender-1", "streak", "")); ok {
		t.Error("sender-1 streak survived invalidation")
	}
	if _, _, ok := c.Get(Key("sender-1", "today")); ok {
		t.Error("sender-1 today survived invalidation")
	}
	if _, _, ok := c.Get(Key("sender-2", "today")); !ok {
		t.Error("sender-2 entry was invalidated")
	}
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("body"))
	if !CheckETagMatch(etag, etag) {
		t.Error("identical etags did not match")
	}
	if !CheckETagMatch("*", etag) {
		t.Error("wildcard did not match")
	}
	if CheckETagMatch("", etag) {
		t.Error("empty If-None-Match matched")
	}
	if CheckETagMatch(`W/"other"`, etag) {
		t.Error("different etag matched")
	}
}
