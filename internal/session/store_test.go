package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_Ingest(t *testing.T) {
	tests := []struct {
		name       string
		setCookies []string
		wantName   string
		wantValue  string
		wantOK     bool
	}{
		{"simple", []string{"session=abc123; Path=/"}, "session", "abc123", true},
		{"no attributes", []string{"token=xyz"}, "token", "xyz", true},
		{"trims whitespace", []string{"  lang = et ; HttpOnly"}, "lang", "et", true},
		{"empty value kept", []string{"flag=; Path=/"}, "flag", "", true},
		{"value with equals", []string{"b64=YWJj==; Secure"}, "b64", "YWJj==", true},
		{"missing separator", []string{"garbage; Path=/"}, "garbage", "", false},
		{"empty name", []string{"=value; Path=/"}, "", "", false},
		{"empty directive", []string{""}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Ingest(tt.setCookies...)

			got, ok := s.Get(tt.wantName)
			if ok != tt.wantOK {
				t.Fatalf("Get(%q) ok = %v, want %v", tt.wantName, ok, tt.wantOK)
			}
			if got != tt.wantValue {
				t.Errorf("Get(%q) = %q, want %q", tt.wantName, got, tt.wantValue)
			}
			if !tt.wantOK && s.Len() != 0 {
				t.Errorf("Len() = %d, want 0 for skipped directive", s.Len())
			}
		})
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := NewStore()
	s.Ingest("session=first", "other=1")
	s.Ingest("session=second")
	s.Ingest("session=third; Path=/", "extra=2")

	if got, _ := s.Get("session"); got != "third" {
		t.Errorf("session = %q, want %q", got, "third")
	}
	if got, _ := s.Get("other"); got != "1" {
		t.Errorf("other = %q, want %q", got, "1")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestStore_HeaderString(t *testing.T) {
	s := NewStore()
	if got := s.HeaderString(); got != "" {
		t.Errorf("empty store HeaderString() = %q, want empty", got)
	}

	s.Ingest("b=2", "a=1")
	if got := s.HeaderString(); got != "a=1; b=2" {
		t.Errorf("HeaderString() = %q, want %q", got, "a=1; b=2")
	}
}

func TestStore_Merge(t *testing.T) {
	tests := []struct {
		name   string
		stored []string
		client string
		want   string
	}{
		{"both present", []string{"b=2"}, "a=1", "a=1; b=2"},
		{"client only", nil, "a=1", "a=1"},
		{"store only", []string{"b=2"}, "", "b=2"},
		{"neither", nil, "", ""},
		{"overlap not deduplicated", []string{"session=new"}, "session=old", "session=old; session=new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Ingest(tt.stored...)
			if got := s.Merge(tt.client); got != tt.want {
				t.Errorf("Merge(%q) = %q, want %q", tt.client, got, tt.want)
			}
		})
	}
}

func TestStore_ConcurrentIngest(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Ingest(fmt.Sprintf("shared=%d", i), fmt.Sprintf("own%d=%d", i, i))
			_ = s.Merge("client=1")
		}(i)
	}
	wg.Wait()

	if s.Len() != 51 {
		t.Errorf("Len() = %d, want 51", s.Len())
	}
	if _, ok := s.Get("shared"); !ok {
		t.Error("shared cookie missing after concurrent ingest")
	}

	// Once writers are quiescent the next ingest is authoritative.
	s.Ingest("shared=final")
	if got, _ := s.Get("shared"); got != "final" {
		t.Errorf("shared = %q, want %q", got, "final")
	}
}
