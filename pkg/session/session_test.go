package session

import (
	"sync"
	"testing"
	"time"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/geom"

	"github.com/google/uuid"
)

func holder() *clipboard.Holder {
	c := clipboard.New(geom.NewRegion(geom.V(0, 0, 0), geom.V(1, 0, 0)))
	_ = c.SetBlock(geom.V(1, 0, 0), clipboard.MustParseBlockState("stone"))
	return clipboard.NewHolder(c)
}

func TestEmptySession(t *testing.T) {
	s := NewManager().Create()

	if _, err := s.Clipboard(); !errors.IsKind(err, errors.KindEmptyClipboard) {
		t.Errorf("Clipboard() error = %v, want empty clipboard", err)
	}
	if err := s.Apply(geom.RotateY(90)); !errors.IsKind(err, errors.KindEmptyClipboard) {
		t.Errorf("Apply() error = %v, want empty clipboard", err)
	}
	if !s.Transform().IsIdentity() {
		t.Error("Transform() on an empty session should be identity")
	}
}

func TestSetClipboardReplaces(t *testing.T) {
	s := NewManager().Create()
	first, second := holder(), holder()

	s.SetClipboard(first)
	if err := s.Apply(geom.RotateY(90)); err != nil {
		t.Fatal(err)
	}
	s.SetClipboard(second)

	h, err := s.Holder()
	if err != nil || h != second {
		t.Fatalf("Holder() = %p, %v; want the second holder", h, err)
	}
	if !s.Transform().IsIdentity() {
		t.Errorf("replacing the clipboard kept transform %s", s.Transform())
	}

	s.Clear()
	if _, err := s.Holder(); err == nil {
		t.Error("Holder() after Clear() succeeded")
	}
}

func TestApplyAndReset(t *testing.T) {
	s := NewManager().Create()
	s.SetClipboard(holder())

	for i := 0; i < 2; i++ {
		if err := s.Apply(geom.RotateY(90)); err != nil {
			t.Fatal(err)
		}
	}
	if !s.Transform().Equal(geom.RotateY(180)) {
		t.Errorf("Transform() = %s, want 180 degree yaw", s.Transform())
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if !s.Transform().IsIdentity() {
		t.Errorf("Transform() after Reset() = %s", s.Transform())
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	tick := time.Unix(1000, 0)
	m.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	a, b := m.Create(), m.Create()
	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}
	if got, err := m.Lookup(b.ID().String()); err != nil || got != b {
		t.Errorf("Lookup() = %v, %v", got, err)
	}
	if _, err := m.Lookup("not-a-uuid"); err == nil {
		t.Error("Lookup(garbage) succeeded")
	}
	if _, ok := m.Get(uuid.New()); ok {
		t.Error("Get(random) found a session")
	}

	list := m.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Errorf("List() order wrong")
	}

	a.SetClipboard(holder())
	if !m.Close(a.ID()) || m.Close(a.ID()) {
		t.Error("Close() should succeed exactly once")
	}
	if _, err := a.Holder(); err == nil {
		t.Error("closed session still holds a clipboard")
	}
}

func TestConcurrentApply(t *testing.T) {
	s := NewManager().Create()
	s.SetClipboard(holder())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Apply(geom.RotateY(90))
		}()
	}
	wg.Wait()
	// eight quarter turns
	if !s.Transform().IsIdentity() {
		t.Errorf("Transform() = %s, want identity", s.Transform())
	}
}
