package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func strp(s string) *string { return &s }

func TestComplaintFieldsSetUnknownField(t *testing.T) {
	var f ComplaintFields
	if err := f.Set("colour", strp("red")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if err := f.Set("Description", strp("card declined")); err != nil {
		t.Fatalf("set description: %v", err)
	}
	if f.Description == nil || *f.Description != "card declined" {
		t.Fatalf("description not set: %+v", f.Description)
	}
}

func TestComplaintFieldsMergeSkipsBlank(t *testing.T) {
	f := ComplaintFields{Description: strp("card declined")}
	changed := f.Merge(ComplaintFields{Description: strp("  "), Category: strp("Cards")})
	if !changed {
		t.Fatalf("expected change")
	}
	if *f.Description != "card declined" {
		t.Fatalf("blank patch value overwrote description")
	}
	if f.Category == nil || *f.Category != "Cards" {
		t.Fatalf("category not merged")
	}
	if f.Merge(ComplaintFields{Category: strp("Cards")}) {
		t.Fatalf("identical merge should report no change")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	emp := int64(3)
	c := Complaint{
		Fields:     ComplaintFields{Description: strp("a")},
		Submission: &Submission{ReferenceNumber: "CMP123456ABC", Status: StatusAssigned, AssignedTo: &emp},
	}
	cp := c.Clone()
	*cp.Fields.Description = "b"
	*cp.Submission.AssignedTo = 9
	cp.Submission.Status = StatusClosed
	if *c.Fields.Description != "a" || *c.Submission.AssignedTo != 3 || c.Submission.Status != StatusAssigned {
		t.Fatalf("clone aliases original: %+v", c)
	}
}

func TestComplaintJSONDraftShape(t *testing.T) {
	c := Complaint{ID: "c1", CustomerID: 42, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["is_draft"] != true {
		t.Fatalf("expected is_draft=true, got %v", out["is_draft"])
	}
	if out["reference_number"] != nil || out["status"] != nil {
		t.Fatalf("draft must not expose reference/status: %s", b)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" In_Progress "); !ok || s != StatusInProgress {
		t.Fatalf("expected in_progress, got %q %v", s, ok)
	}
	if _, ok := ParseStatus("resolved"); ok {
		t.Fatalf("resolved is not a status")
	}
	if !StatusEscalated.Terminal() || StatusAssigned.Terminal() {
		t.Fatalf("terminal flags wrong")
	}
}

func TestAppendAttachmentDeduplicates(t *testing.T) {
	raw := AppendAttachment(nil, "complaints/c1/a.png")
	raw = AppendAttachment(raw, "complaints/c1/b.pdf")
	raw = AppendAttachment(raw, "complaints/c1/a.png")
	if got := SplitAttachments(raw); len(got) != 2 || !strings.HasSuffix(got[1], "b.pdf") {
		t.Fatalf("unexpected attachments %v", got)
	}
}

func TestNormalizeCategory(t *testing.T) {
	if c, ok := NormalizeCategory("security & fraud"); !ok || c != "Security & Fraud" {
		t.Fatalf("got %q %v", c, ok)
	}
	if _, ok := NormalizeCategory("Crypto"); ok {
		t.Fatalf("unexpected match")
	}
}
