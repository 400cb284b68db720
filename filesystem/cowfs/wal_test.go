package cowfs

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLog(t *testing.T, numBlocks uint32) *Log {
	t.Helper()
	store := newTestStore(t, uint64(numBlocks))
	l := NewLog(store, 0, numBlocks, logrus.New())
	if err := l.FormatEmpty(); err != nil {
		t.Fatalf("FormatEmpty failed: %v", err)
	}
	return l
}

func TestLogAppendAndScan(t *testing.T) {
	l := newTestLog(t, 4)

	seq0, err := l.Append(opInodeAdd, inodeLocPayload(1, 10))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	seq1, err := l.Append(opInodeUpdate, inodeLocPayload(1, 11))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if seq1 != seq0+1 {
		t.Errorf("sequence numbers not monotonic: %d then %d", seq0, seq1)
	}

	records, err := l.ScanAll()
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ScanAll returned %d records, want 2", len(records))
	}
	if records[0].opType != opInodeAdd || records[1].opType != opInodeUpdate {
		t.Errorf("records out of order or wrong op type: %+v", records)
	}

	since, err := l.ScanSince(seq0)
	if err != nil {
		t.Fatalf("ScanSince failed: %v", err)
	}
	if len(since) != 1 || since[0].sequence != seq1 {
		t.Errorf("ScanSince(%d) = %+v, want only seq %d", seq0, since, seq1)
	}
}

func TestLogRotatesAcrossEntryBlocks(t *testing.T) {
	l := newTestLog(t, 4)
	for i := 0; i < maxRecordsPerEntry+3; i++ {
		if _, err := l.Append(opInodeAdd, inodeLocPayload(uint32(i), uint32(i))); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	records, err := l.ScanAll()
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if len(records) != maxRecordsPerEntry+3 {
		t.Fatalf("ScanAll returned %d records, want %d", len(records), maxRecordsPerEntry+3)
	}
}

func TestLogResumeContinuesSequence(t *testing.T) {
	store := newTestStore(t, 4)
	l := NewLog(store, 0, 4, logrus.New())
	if err := l.FormatEmpty(); err != nil {
		t.Fatalf("FormatEmpty failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := l.Append(opInodeAdd, inodeLocPayload(uint32(i), uint32(i))); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	// simulate reopening the volume: a brand new Log over the same store.
	reopened := NewLog(store, 0, 4, logrus.New())
	if err := reopened.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if reopened.NextSequence() != 5 {
		t.Errorf("NextSequence after resume = %d, want 5", reopened.NextSequence())
	}

	seq, err := reopened.Append(opInodeAdd, inodeLocPayload(5, 5))
	if err != nil {
		t.Fatalf("Append after resume failed: %v", err)
	}
	if seq != 5 {
		t.Errorf("first post-resume sequence = %d, want 5", seq)
	}
}

func TestLogRecordRoundTrip(t *testing.T) {
	rec := logRecord{sequence: 99, opType: opCheckpoint, payload: checkpointRecordPayload(3, 4096)}
	got, err := logRecordFromBytes(rec.toBytes())
	if err != nil {
		t.Fatalf("logRecordFromBytes failed: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}
