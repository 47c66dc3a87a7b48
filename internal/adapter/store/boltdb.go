package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"legalrag/internal/domain"
)

var (
	bucketEntries   = []byte("entries")
	bucketDocs      = []byte("docs")
	bucketDocChunks = []byte("doc_chunks")
	bucketMeta      = []byte("meta")
	keyDimension    = []byte("dimension")
)

// storedEntry is the on-disk form of a vector entry. The raw vector is kept;
// the unit vector used for scoring is derived on load.
type storedEntry struct {
	Vector     []float32       `json:"v"`
	DocID      string          `json:"doc"`
	Seq        int             `json:"seq"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	Text       string          `json:"text"`
	Metadata   domain.Metadata `json:"meta"`
	Generation string          `json:"gen,omitempty"`
}

func encodeEntry(e domain.VectorEntry) ([]byte, error) {
	return json.Marshal(storedEntry{
		Vector:     e.Vector,
		DocID:      e.Chunk.DocID,
		Seq:        e.Chunk.Seq,
		Start:      e.Chunk.Start,
		End:        e.Chunk.End,
		Text:       e.Chunk.Text,
		Metadata:   e.Chunk.Metadata,
		Generation: e.Generation,
	})
}

func decodeEntry(id string, data []byte) (domain.VectorEntry, error) {
	var s storedEntry
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.VectorEntry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return domain.VectorEntry{
		Chunk: domain.Chunk{
			ID:       id,
			DocID:    s.DocID,
			Seq:      s.Seq,
			Start:    s.Start,
			End:      s.End,
			Text:     s.Text,
			Metadata: s.Metadata,
		},
		Vector:     s.Vector,
		Generation: s.Generation,
	}, nil
}

// openDB opens or creates the bolt file and its buckets.
func openDB(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketEntries, bucketDocs, bucketDocChunks, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func readDimension(tx *bbolt.Tx) (int, error) {
	data := tx.Bucket(bucketMeta).Get(keyDimension)
	if data == nil {
		return 0, nil
	}
	dim, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid stored dimension %q: %w", data, err)
	}
	return dim, nil
}

func writeDimension(tx *bbolt.Tx, dim int) error {
	return tx.Bucket(bucketMeta).Put(keyDimension, []byte(strconv.Itoa(dim)))
}

func getChunkIDs(tx *bbolt.Tx, docID string) ([]string, error) {
	data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode chunk list for %s: %w", docID, err)
	}
	return ids, nil
}

func putChunkIDs(tx *bbolt.Tx, docID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDocChunks).Put([]byte(docID), data)
}

func putDoc(tx *bbolt.Tx, doc domain.IndexedDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
}

func getDoc(tx *bbolt.Tx, docID string) (domain.IndexedDocument, bool, error) {
	data := tx.Bucket(bucketDocs).Get([]byte(docID))
	if data == nil {
		return domain.IndexedDocument{}, false, nil
	}
	var doc domain.IndexedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.IndexedDocument{}, false, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return doc, true, nil
}

// deleteDocEntries removes a document's entries, chunk list and record.
func deleteDocEntries(tx *bbolt.Tx, docID string) ([]string, error) {
	ids, err := getChunkIDs(tx, docID)
	if err != nil {
		return nil, err
	}
	entries := tx.Bucket(bucketEntries)
	for _, id := range ids {
		if err := entries.Delete([]byte(id)); err != nil {
			return nil, err
		}
	}
	if err := tx.Bucket(bucketDocChunks).Delete([]byte(docID)); err != nil {
		return nil, err
	}
	if err := tx.Bucket(bucketDocs).Delete([]byte(docID)); err != nil {
		return nil, err
	}
	return ids, nil
}

// docLocks serialises writers per document.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *docLocks) lock(docID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[docID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[docID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
