package fixedpointstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/printer"
)

// Store is a sqlite3-backed memo of tainted-loop fixed points, keyed by a
// hash of the loop's original (pre-simplification) source text. It supplements
// pkg/eval's in-memory LRU across process invocations; opt-in via the CLI's
// -cache flag.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the sqlite3 database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS fixedpoints (
		hash TEXT PRIMARY KEY,
		test BLOB,
		body BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Hash derives a lookup key from the printed text of an original,
// pre-simplification loop node. pkg/eval keys its entries the same way on
// a node holding the loop's test, update and body together, the inputs the
// fixed-point pass consumes besides environment state (which never affects
// the result per pkg/eval/fixedpoint_cache.go's grounding note). Rendering through
// pkg/printer before hashing, rather than hashing the Go struct layout
// directly, keeps the key stable across encode/decode round-trips and
// across a process restart.
func Hash(body ast.Node) string {
	text := printer.PrintStatements([]ast.Node{body})
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get looks up a previously stored (test, body) pair by hash. body is
// always a *ast.BlockStatement (pkg/eval never stores anything else there),
// matching the shape pkg/eval/fixedpoint_cache.go's in-memory tier uses.
func (s *Store) Get(hash string) (test ast.Node, body *ast.BlockStatement, ok bool, err error) {
	var testBlob []byte
	var bodyBlob []byte
	row := s.db.QueryRow(`SELECT test, body FROM fixedpoints WHERE hash = ?`, hash)
	switch err := row.Scan(&testBlob, &bodyBlob); {
	case err == sql.ErrNoRows:
		return nil, nil, false, nil
	case err != nil:
		return nil, nil, false, err
	}
	if len(testBlob) > 0 {
		test, err = unmarshal(testBlob)
		if err != nil {
			return nil, nil, false, fmt.Errorf("fixedpointstore: decode test: %w", err)
		}
	}
	bodyNode, err := unmarshal(bodyBlob)
	if err != nil {
		return nil, nil, false, fmt.Errorf("fixedpointstore: decode body: %w", err)
	}
	block, ok := bodyNode.(*ast.BlockStatement)
	if !ok {
		return nil, nil, false, fmt.Errorf("fixedpointstore: stored body is not a block")
	}
	return test, block, true, nil
}

// Put stores test and body under hash, replacing any prior entry.
func (s *Store) Put(hash string, test ast.Node, body *ast.BlockStatement) error {
	var testBlob []byte
	if test != nil {
		var err error
		testBlob, err = marshal(test)
		if err != nil {
			return fmt.Errorf("fixedpointstore: encode test: %w", err)
		}
	}
	bodyBlob, err := marshal(body)
	if err != nil {
		return fmt.Errorf("fixedpointstore: encode body: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO fixedpoints (hash, test, body) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET test = excluded.test, body = excluded.body`,
		hash, testBlob, bodyBlob,
	)
	return err
}
