package client

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/mistakeknot/tasksync/internal/core"
)

var testCreds = core.Credentials{Email: "a@x", EncryptionSecret: "s3cret", UUID: "owner-1"}

type fataler interface {
	Fatalf(format string, args ...any)
}

func wireKeys(t fataler, payload any) map[string]json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestCreatePayloadRequiredKeys(t *testing.T) {
	keys := wireKeys(t, BuildCreatePayload(testCreds, CreateFields{Description: "d"}))
	for _, k := range []string{"email", "encryptionSecret", "UUID", "description", "project", "priority", "entry", "wait", "tags", "annotations"} {
		if _, ok := keys[k]; !ok {
			t.Errorf("missing required key %q", k)
		}
	}
	for _, k := range []string{"due", "start", "end", "recur", "depends"} {
		if _, ok := keys[k]; ok {
			t.Errorf("optional key %q should be omitted when empty", k)
		}
	}
	if string(keys["annotations"]) != "[]" || string(keys["tags"]) != "[]" {
		t.Fatalf("lists must encode as [], got annotations=%s tags=%s", keys["annotations"], keys["tags"])
	}
}

func TestCreatePayloadDue(t *testing.T) {
	if _, ok := wireKeys(t, BuildCreatePayload(testCreds, CreateFields{Due: ""}))["due"]; ok {
		t.Fatal("empty due should be omitted")
	}
	keys := wireKeys(t, BuildCreatePayload(testCreds, CreateFields{Due: "2025-12-31"}))
	if string(keys["due"]) != `"2025-12-31"` {
		t.Fatalf("expected due 2025-12-31, got %s", keys["due"])
	}
}

func TestCreatePayloadDepends(t *testing.T) {
	if _, ok := wireKeys(t, BuildCreatePayload(testCreds, CreateFields{Depends: []string{}}))["depends"]; ok {
		t.Fatal("empty depends should be omitted")
	}
	p := BuildCreatePayload(testCreds, CreateFields{Depends: []string{"t1", "t2"}})
	if !reflect.DeepEqual(p.Depends, []string{"t1", "t2"}) {
		t.Fatalf("unexpected depends %v", p.Depends)
	}
}

func TestAnnotationFilterExample(t *testing.T) {
	in := []core.Annotation{{Entry: "1", Description: "note"}, {Entry: "2", Description: ""}}
	p := BuildCreatePayload(testCreds, CreateFields{Annotations: in})
	if len(p.Annotations) != 1 || p.Annotations[0].Description != "note" {
		t.Fatalf("unexpected annotations %+v", p.Annotations)
	}
	e := BuildEditPayload(testCreds, EditFields{Annotations: in})
	if len(e.Annotations) != 1 || e.Annotations[0].Description != "note" {
		t.Fatalf("unexpected edit annotations %+v", e.Annotations)
	}
}

func annotationGen() *rapid.Generator[core.Annotation] {
	return rapid.Custom(func(t *rapid.T) core.Annotation {
		return core.Annotation{
			Entry:       rapid.StringMatching(`[0-9]{1,4}`).Draw(t, "entry"),
			Description: rapid.StringMatching(`[ \t]{0,3}|[a-z ]{1,12}`).Draw(t, "description"),
		}
	})
}

func TestAnnotationsNeverBlankProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(annotationGen()).Draw(t, "annotations")
		want := 0
		for _, a := range in {
			if strings.TrimSpace(a.Description) != "" {
				want++
			}
		}
		for _, got := range [][]core.Annotation{
			BuildCreatePayload(testCreds, CreateFields{Annotations: in}).Annotations,
			BuildEditPayload(testCreds, EditFields{Annotations: in}).Annotations,
		} {
			if got == nil || len(got) != want {
				t.Fatalf("expected %d annotations, got %v", want, got)
			}
			for _, a := range got {
				if strings.TrimSpace(a.Description) == "" {
					t.Fatalf("blank annotation transmitted: %+v", a)
				}
			}
		}
	})
}

func TestCreateOptionalFieldsProperty(t *testing.T) {
	optional := rapid.StringMatching(`|2025-0[1-9]-[12][0-9]`)
	rapid.Check(t, func(t *rapid.T) {
		f := CreateFields{
			Description: "d",
			Due:         optional.Draw(t, "due"),
			Start:       optional.Draw(t, "start"),
			End:         optional.Draw(t, "end"),
			Recur:       rapid.SampledFrom([]string{"", "weekly", "daily"}).Draw(t, "recur"),
			Depends:     rapid.SliceOfN(rapid.StringMatching(`t[0-9]{1,3}`), 0, 4).Draw(t, "depends"),
		}
		keys := wireKeys(t, BuildCreatePayload(testCreds, f))
		check := func(key string, present bool) {
			if _, ok := keys[key]; ok != present {
				t.Fatalf("key %q present=%v, want %v", key, ok, present)
			}
		}
		check("due", f.Due != "")
		check("start", f.Start != "")
		check("end", f.End != "")
		check("recur", f.Recur != "")
		check("depends", len(f.Depends) > 0)
	})
}

func TestEditPayloadSendsClearedFields(t *testing.T) {
	keys := wireKeys(t, BuildEditPayload(testCreds, EditFields{TaskUUID: "x"}))
	for _, k := range []string{"taskUUID", "description", "project", "entry", "wait", "start", "end", "due", "recur", "tags", "annotations"} {
		if _, ok := keys[k]; !ok {
			t.Errorf("edit payload missing %q", k)
		}
	}
	if _, ok := keys["depends"]; ok {
		t.Error("empty depends must not be sent on edit")
	}
	if string(keys["taskUUID"]) != `"x"` {
		t.Fatalf("unexpected taskUUID %s", keys["taskUUID"])
	}
}

func TestModifyPayloadUsesLowercaseTaskUUID(t *testing.T) {
	keys := wireKeys(t, BuildModifyPayload(testCreds, ModifyFields{TaskUUID: "x", Status: core.StatusCompleted}))
	if string(keys["taskuuid"]) != `"x"` {
		t.Fatalf("expected taskuuid=x, got %s", keys["taskuuid"])
	}
	if _, ok := keys["taskUUID"]; ok {
		t.Fatal("modify payload must not carry taskUUID")
	}
	if string(keys["status"]) != `"completed"` {
		t.Fatalf("unexpected status %s", keys["status"])
	}
}

func TestPayloadBuildersDoNotAliasInput(t *testing.T) {
	deps := []string{"t1"}
	p := BuildCreatePayload(testCreds, CreateFields{Depends: deps})
	p.Depends[0] = "changed"
	if deps[0] != "t1" {
		t.Fatal("payload aliases caller slice")
	}
}
