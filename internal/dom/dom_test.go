package dom

import "testing"

func TestNodeMutationsAreCounted(t *testing.T) {
	doc := NewDocument()
	n := doc.Create("outTemp")

	var seen []Mutation
	doc.Observe(func(m Mutation) { seen = append(seen, m) })

	n.SetText("72.5°F")
	n.AddClass("active")
	n.AddClass("active")
	n.RemoveClass("missing")
	n.SetAttr("data-theme", "dark")
	n.SetHidden(true)

	if got := doc.Writes("outTemp"); got != 4 {
		t.Fatalf("expected 4 writes, got %d", got)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 observed mutations, got %d", len(seen))
	}
	if seen[0] != (Mutation{NodeID: "outTemp", Field: "text", Value: "72.5°F"}) {
		t.Fatalf("unexpected first mutation: %+v", seen[0])
	}
	if n.Text() != "72.5°F" || !n.HasClass("active") || n.Attr("data-theme") != "dark" || !n.Hidden() {
		t.Fatalf("node state not applied: %+v", doc.Snapshot())
	}
}

func TestCreateIsIdempotentAndByIDMissing(t *testing.T) {
	doc := NewDocument()
	a := doc.Create("a")
	if doc.Create("a") != a {
		t.Fatal("Create returned a different node for the same id")
	}
	if doc.ByID("b") != nil {
		t.Fatal("expected nil for unknown id")
	}
	if doc.Writes("b") != 0 {
		t.Fatal("expected zero writes for unknown id")
	}
}

func TestSnapshotOrder(t *testing.T) {
	doc := NewDocument()
	doc.Create("z").SetText("last")
	doc.Create("a").AddClass("x")

	snap := doc.Snapshot()
	if len(snap) != 2 || snap[0].ID != "z" || snap[1].ID != "a" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap[1].Classes[0] != "x" || snap[0].Writes != 1 {
		t.Fatalf("unexpected snapshot content: %+v", snap)
	}
}

func TestObserverAddedDuringNotifySeesOnlyLaterMutations(t *testing.T) {
	doc := NewDocument()
	n := doc.Create("outTemp")

	var late []Mutation
	registered := false
	doc.Observe(func(m Mutation) {
		if !registered {
			registered = true
			doc.Observe(func(m Mutation) { late = append(late, m) })
		}
	})

	n.SetText("70.1°F")
	if len(late) != 0 {
		t.Fatalf("observer registered during notify saw the current mutation: %v", late)
	}
	n.SetText("70.2°F")
	if len(late) != 1 || late[0].Value != "70.2°F" {
		t.Fatalf("late observer got %v", late)
	}
}
