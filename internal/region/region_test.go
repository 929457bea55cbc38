package region

import "testing"

func TestRectangleContains(t *testing.T) {
	r := New("lobby", 0, 0, 2, 2, Rectangle)
	if !r.Contains(0.5, 0.9) {
		t.Fatal("expected point inside the rectangle to match")
	}
	if r.Contains(1.1, 0) {
		t.Fatal("expected point outside the rectangle to not match")
	}
}

func TestEllipseContains(t *testing.T) {
	r := New("oval", 0, 0, 4, 2, Ellipse)
	if !r.Contains(1, 0) {
		t.Fatal("expected point within the ellipse to match")
	}
	if r.Contains(1.9, 0.9) {
		t.Fatal("expected point outside the normalized ellipse to not match")
	}
}

func TestInvertFlagNegatesTest(t *testing.T) {
	r := New("lobby", 0, 0, 2, 2, Rectangle)
	r.Invert = true
	if r.Contains(0, 0) {
		t.Fatal("expected invert to flip an otherwise-true containment")
	}
	if !r.Contains(5, 5) {
		t.Fatal("expected invert to flip an otherwise-false containment")
	}
}

func TestEdgeHalfPlaneIgnoresOrthogonalExtent(t *testing.T) {
	r := New("doorway", 0, 0, 2, 2, Rectangle)
	r.Edge = EdgeRight
	if !r.Contains(1, 100) {
		t.Fatal("expected the right-edge half-plane to match regardless of y extent")
	}
	if r.Contains(-1, 0) {
		t.Fatal("expected the right-edge half-plane to reject points on the left side")
	}
}

func TestByNameOrTagAllMatchesEverything(t *testing.T) {
	reg := NewRegistry()
	reg.Add(New("a", 0, 0, 1, 1, Rectangle))
	reg.Add(New("b", 0, 0, 1, 1, Rectangle))

	if got := reg.ByNameOrTag("all"); len(got) != 2 {
		t.Fatalf("expected 'all' to match every region, got %d", len(got))
	}
}

func TestByNameOrTagMatchesNameOrTag(t *testing.T) {
	reg := NewRegistry()
	lobby := New("lobby", 0, 0, 1, 1, Rectangle)
	lobby.Tags["public"] = true
	reg.Add(lobby)
	office := New("office", 0, 0, 1, 1, Rectangle)
	office.Tags["private"] = true
	reg.Add(office)

	if got := reg.ByNameOrTag("public"); len(got) != 1 || got[0].Name != "lobby" {
		t.Fatalf("expected tag lookup to match lobby, got %v", got)
	}
	if got := reg.ByNameOrTag("office"); len(got) != 1 || got[0].Name != "office" {
		t.Fatalf("expected name lookup to match office, got %v", got)
	}
}

func TestParseBindingInvertPrefix(t *testing.T) {
	reg := NewRegistry()
	reg.Add(New("lobby", 0, 0, 2, 2, Rectangle))

	b := ParseBinding("~lobby", reg)
	if len(b.Regions) != 1 || !b.Regions[0].Invert {
		t.Fatalf("expected ~lobby to produce one inverted BoundRegion, got %+v", b.Regions)
	}
	if b.Contains(0, 0) {
		t.Fatal("expected the inverted binding to reject a point inside lobby")
	}
	if !b.Contains(10, 10) {
		t.Fatal("expected the inverted binding to accept a point outside lobby")
	}
}

func TestParseBindingUniteRule(t *testing.T) {
	reg := NewRegistry()
	reg.Add(New("a", 0, 0, 1, 1, Rectangle))
	reg.Add(New("b", 5, 5, 1, 1, Rectangle))

	b := ParseBinding("a,b = merged", reg)
	if b.UniteRule != "merged" {
		t.Fatalf("expected unite rule %q, got %q", "merged", b.UniteRule)
	}
	if len(b.Regions) != 2 {
		t.Fatalf("expected both regions bound, got %d", len(b.Regions))
	}
}

func TestParseBindingNoUniteRule(t *testing.T) {
	reg := NewRegistry()
	reg.Add(New("a", 0, 0, 1, 1, Rectangle))

	b := ParseBinding("a", reg)
	if b.UniteRule != "" {
		t.Fatalf("expected no unite rule, got %q", b.UniteRule)
	}
}

func TestParseBindingTagMatchThenExcludeOneMember(t *testing.T) {
	reg := NewRegistry()
	r1 := New("r1", 0, 0, 1, 1, Rectangle)
	r1.Tags["zoneA"] = true
	reg.Add(r1)
	r2 := New("r2", 5, 5, 1, 1, Rectangle)
	r2.Tags["zoneA"] = true
	r2.Tags["vip"] = true
	reg.Add(r2)
	r3 := New("r3", 10, 10, 1, 1, Rectangle)
	r3.Tags["zoneB"] = true
	reg.Add(r3)

	b := ParseBinding("zoneA,~r2", reg)
	if len(b.Regions) != 1 || b.Regions[0].Region.Name != "r1" || b.Regions[0].Invert {
		t.Fatalf("expected only r1, non-inverted; got %+v", b.Regions)
	}
	if b.Contains(5, 5) {
		t.Fatal("expected r2's excluded region to never match, not vacuously match everywhere")
	}
	if !b.Contains(0, 0) {
		t.Fatal("expected r1 to still match its own point")
	}
}
