package orchestrator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/wiki"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		code string
		want domain.FailureKind
	}{
		{"missingtitle", domain.FailurePageMissing},
		{"invalidtitle", domain.FailureTitleInvalid},
		{"protectedpage", domain.FailurePageProtected},
		{"cascadeprotected", domain.FailurePageProtected},
		{"protectednamespace", domain.FailurePageProtected},
		{"protectednamespace-interface", domain.FailurePageProtected},
		{"protectedtitle", domain.FailurePageProtected},
		{"editconflict", domain.FailureEditConflict},
		{"maxlag", domain.FailureMaxlag},
		{"blocked", domain.FailureBlocked},
		{"autoblocked", domain.FailureBlocked},
		{"partialblocked", domain.FailureBlocked},
		{"readonly", domain.FailureWikiReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("edit: %w", &wiki.Error{Code: tt.code})
			f, ok := Classify(err, now)
			if !ok {
				t.Fatalf("Classify(%s) not classified", tt.code)
			}
			if f.Type != tt.want {
				t.Errorf("Type = %s, want %s", f.Type, tt.want)
			}
			if !f.Known() {
				t.Error("classified failure must have a policy")
			}
		})
	}
}

func TestClassify_Unclassified(t *testing.T) {
	for _, err := range []error{
		errors.New("connection reset"),
		&wiki.Error{Code: "badtoken"},
		fmt.Errorf("fetch: %w", wiki.ErrBadResponse),
	} {
		if f, ok := Classify(err, time.Now()); ok {
			t.Errorf("Classify(%v) = %v, want unclassified", err, f)
		}
	}
}

func TestClassify_Maxlag(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	f, _ := Classify(&wiki.Error{Code: "maxlag", RetryAfter: 5 * time.Second}, now)
	c := f.Continuation()
	if c.Kind != domain.SuspendBatch || !c.Until.Equal(now.Add(5*time.Second)) {
		t.Errorf("continuation = %+v, want suspend until now+5s", c)
	}

	f, _ = Classify(&wiki.Error{Code: "maxlag"}, now)
	if f.RetryAfter != nil {
		t.Errorf("RetryAfter = %v, want nil", f.RetryAfter)
	}
	if c := f.Continuation(); c.Kind != domain.ContinueBatch {
		t.Errorf("continuation = %+v, want continue", c)
	}
}

func TestClassify_ReadOnly(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	f, _ := Classify(&wiki.Error{Code: "readonly", Info: "read-only", ReadOnlyReason: "Maintenance"}, now)
	if f.Reason != "Maintenance" {
		t.Errorf("Reason = %q", f.Reason)
	}
	if c := f.Continuation(); c.Kind != domain.StopBatch {
		t.Errorf("continuation without Retry-After = %+v, want stop", c)
	}

	f, _ = Classify(&wiki.Error{Code: "readonly", Info: "read-only", RetryAfter: time.Minute}, now)
	if f.Reason != "read-only" {
		t.Errorf("Reason = %q, want info fallback", f.Reason)
	}
	if c := f.Continuation(); c.Kind != domain.SuspendBatch || !c.Until.Equal(now.Add(time.Minute)) {
		t.Errorf("continuation = %+v, want suspend until now+1m", c)
	}
}

func TestClassify_Blocked(t *testing.T) {
	f, _ := Classify(&wiki.Error{
		Code:  "blocked",
		Block: &wiki.BlockDetails{ID: 7, By: "Admin", Reason: "vandalism", Expiry: "infinite"},
	}, time.Now())
	want := domain.BlockInfo{ID: 7, By: "Admin", Reason: "vandalism", Expiry: "infinite"}
	if f.Block == nil || *f.Block != want {
		t.Errorf("Block = %+v, want %+v", f.Block, want)
	}

	f, _ = Classify(&wiki.Error{Code: "partialblocked"}, time.Now())
	if f.Block == nil || !f.Block.Partial {
		t.Errorf("partialblocked must set Partial, got %+v", f.Block)
	}
	if c := f.Continuation(); c.Kind != domain.StopBatch {
		t.Errorf("partial block continuation = %+v, want stop", c)
	}
}

func TestClassifyPage(t *testing.T) {
	if f, ok := classifyPage(wiki.Page{Missing: true}); !ok || f.Type != domain.FailurePageMissing {
		t.Errorf("missing page = %v, %v", f, ok)
	}
	if f, ok := classifyPage(wiki.Page{Invalid: true, Missing: true}); !ok || f.Type != domain.FailureTitleInvalid {
		t.Errorf("invalid page = %v, %v", f, ok)
	}
	if _, ok := classifyPage(wiki.Page{PageID: 1}); ok {
		t.Error("existing page must not be classified")
	}
}
