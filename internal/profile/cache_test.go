package profile

import (
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func testPubkey(t *testing.T) string {
	t.Helper()
	pk, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	if err != nil {
		t.Fatalf("derive test pubkey: %v", err)
	}
	return pk
}

func TestDisplayNamePriority(t *testing.T) {
	pk := testPubkey(t)

	c := NewCache()
	c.Update(pk, Profile{Name: "alice99", DisplayName: "Alice"})
	if got := c.DisplayName(pk); got != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got)
	}

	c.Update(pk, Profile{Name: "alice99", DisplayName: ""})
	if got := c.DisplayName(pk); got != "alice99" {
		t.Errorf("DisplayName with empty display_name = %q, want alice99", got)
	}
}

func TestDisplayNameFallsBackToShortNpub(t *testing.T) {
	pk := testPubkey(t)
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	got := c.DisplayName(pk)
	want := npub[:8] + "..." + npub[len(npub)-4:]
	if got != want {
		t.Errorf("uncached DisplayName = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "npub1") {
		t.Errorf("short name %q does not start with npub1", got)
	}
}

func TestApplyMetadataMergesPresentFieldsOnly(t *testing.T) {
	pk := testPubkey(t)
	c := NewCache()

	if !c.ApplyMetadata(pk, `{"name":"alice99","about":"hi there"}`) {
		t.Fatal("first ApplyMetadata rejected valid payload")
	}
	// Second event carries only display_name; name and about survive.
	if !c.ApplyMetadata(pk, `{"display_name":"Alice"}`) {
		t.Fatal("second ApplyMetadata rejected valid payload")
	}

	p, ok := c.Get(pk)
	if !ok {
		t.Fatal("profile missing after updates")
	}
	if p.Name != "alice99" || p.About != "hi there" || p.DisplayName != "Alice" {
		t.Errorf("merged profile = %+v", p)
	}

	// Explicit empty string clears the field.
	if !c.ApplyMetadata(pk, `{"display_name":""}`) {
		t.Fatal("clearing ApplyMetadata rejected valid payload")
	}
	p, _ = c.Get(pk)
	if p.DisplayName != "" {
		t.Errorf("display_name not cleared, got %q", p.DisplayName)
	}
	if got := c.DisplayName(pk); got != "alice99" {
		t.Errorf("DisplayName after clear = %q, want alice99", got)
	}
}

func TestApplyMetadataRejectsMalformed(t *testing.T) {
	pk := testPubkey(t)
	c := NewCache()
	for _, bad := range []string{"", "not json", `["array"]`, `42`} {
		if c.ApplyMetadata(pk, bad) {
			t.Errorf("ApplyMetadata(%q) accepted malformed content", bad)
		}
	}
	if _, ok := c.Get(pk); ok {
		t.Error("malformed metadata created a profile entry")
	}
}

func TestApplyMetadataIgnoresNonStringValues(t *testing.T) {
	pk := testPubkey(t)
	c := NewCache()
	if !c.ApplyMetadata(pk, `{"name":"bob","picture":123}`) {
		t.Fatal("payload with mixed value types rejected outright")
	}
	p, _ := c.Get(pk)
	if p.Name != "bob" {
		t.Errorf("name = %q, want bob", p.Name)
	}
	if p.Picture != "" {
		t.Errorf("non-string picture leaked into profile: %q", p.Picture)
	}
}

func TestLatestWriteWins(t *testing.T) {
	pk := testPubkey(t)
	c := NewCache()
	c.Update(pk, Profile{Name: "newer"})
	// No timestamp comparison: a later-arriving stale update overwrites.
	c.Update(pk, Profile{Name: "stale"})
	p, _ := c.Get(pk)
	if p.Name != "stale" {
		t.Errorf("latest write did not win, got %q", p.Name)
	}
}
