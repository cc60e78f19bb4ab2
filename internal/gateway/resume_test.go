package gateway

import (
	"testing"
	"time"
)

func TestResumableClientsStore_InsertAndTake(t *testing.T) {
	s := NewResumableClientsStore(10, time.Minute)
	info := DisconnectInfo{SessionToken: "tok-1", DisconnectedAtSeq: 5, DisconnectedAt: time.Now(), History: newEventHistory(8)}
	s.Insert(info)

	got, ok := s.Take("tok-1")
	if !ok {
		t.Fatal("expected token to be found")
	}
	if got.DisconnectedAtSeq != 5 {
		t.Errorf("seq = %d, want 5", got.DisconnectedAtSeq)
	}

	if _, ok := s.Take("tok-1"); ok {
		t.Error("token should not be resumable twice")
	}
}

func TestResumableClientsStore_UnknownTokenMisses(t *testing.T) {
	s := NewResumableClientsStore(10, time.Minute)
	if _, ok := s.Take("nonexistent"); ok {
		t.Error("unknown token should not be found")
	}
}

func TestResumableClientsStore_AgedOutEntryTreatedAsUnknown(t *testing.T) {
	s := NewResumableClientsStore(10, time.Millisecond)
	s.Insert(DisconnectInfo{SessionToken: "tok-1", DisconnectedAt: time.Now()})

	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Take("tok-1"); ok {
		t.Error("aged-out entry should be treated as unknown")
	}
}

func TestResumableClientsStore_BoundedByCount(t *testing.T) {
	s := NewResumableClientsStore(2, time.Minute)
	s.Insert(DisconnectInfo{SessionToken: "a", DisconnectedAt: time.Now()})
	s.Insert(DisconnectInfo{SessionToken: "b", DisconnectedAt: time.Now()})
	s.Insert(DisconnectInfo{SessionToken: "c", DisconnectedAt: time.Now()})

	if n := s.Len(); n != 2 {
		t.Errorf("len = %d, want 2 (bounded by maxSize)", n)
	}
	if _, ok := s.Take("a"); ok {
		t.Error("oldest entry should have been evicted once over capacity")
	}
}

func TestEventHistory_SinceReplaysOnlyNewerEntries(t *testing.T) {
	h := newEventHistory(8)
	h.Record(1, "A", nil)
	h.Record(2, "B", nil)
	h.Record(3, "C", nil)

	missed, covered := h.Since(1)
	if !covered {
		t.Fatal("expected history to cover the requested gap")
	}
	if len(missed) != 2 || missed[0].seq != 2 || missed[1].seq != 3 {
		t.Errorf("missed = %+v, want entries for seq 2 and 3", missed)
	}
}

func TestEventHistory_UncoveredGapReportsFalse(t *testing.T) {
	h := newEventHistory(2)
	h.Record(1, "A", nil)
	h.Record(2, "B", nil)
	h.Record(3, "C", nil) // evicts seq 1

	if _, covered := h.Since(0); covered {
		t.Error("gap before the oldest retained entry should not be covered")
	}
}
