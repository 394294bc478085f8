// persistence/filestore.go
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	saveFileExt = ".ndjson"

	headerTypeSessionStart = "session_start"
	recordTypeRollback     = "rollback"

	// maxLineBytes bounds a single save line when scanning; a full board
	// snapshot fits comfortably.
	maxLineBytes = 1024 * 1024
)

// FileStore keeps one newline-delimited-JSON file per room or local
// session under a saves directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create saves dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Open starts a new save file and writes its session_start header.
func (fs *FileStore) Open(room, host string, players []string) (SaveLog, error) {
	id := fmt.Sprintf("%s-%s-%s",
		time.Now().UTC().Format("20060102T150405"),
		room,
		uuid.New().String()[:8])

	f, err := os.OpenFile(filepath.Join(fs.dir, id+saveFileExt),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open save file: %w", err)
	}

	log := &fileSaveLog{id: id, file: f}
	header := SessionHeader{
		Type:    headerTypeSessionStart,
		Room:    room,
		Host:    host,
		Players: players,
		At:      time.Now().UTC(),
	}
	if err := log.appendLine(header); err != nil {
		f.Close()
		return nil, err
	}
	return log, nil
}

// List returns every save, newest first.
func (fs *FileStore) List() ([]SaveInfo, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("read saves dir: %w", err)
	}

	saves := make([]SaveInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), saveFileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), saveFileExt)
		header, err := fs.readHeader(id)
		if err != nil {
			// Skip unreadable files rather than failing the listing.
			continue
		}
		saves = append(saves, SaveInfo{
			ID:        id,
			Room:      header.Room,
			Host:      header.Host,
			Players:   header.Players,
			CreatedAt: header.At,
		})
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].CreatedAt.After(saves[j].CreatedAt)
	})
	return saves, nil
}

// LoadLatest materialises the last recorded snapshot of one save file.
// It works on closed files; the room does not need to be live.
func (fs *FileStore) LoadLatest(id string) (*SnapshotRecord, error) {
	f, err := fs.openByID(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var latest *SnapshotRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		var rec SnapshotRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if len(rec.GameState) == 0 {
			continue // header or rollback line
		}
		latest = &rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan save %s: %w", id, err)
	}
	if latest == nil {
		return nil, ErrNoSnapshot
	}
	return latest, nil
}

func (fs *FileStore) readHeader(id string) (*SessionHeader, error) {
	f, err := fs.openByID(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if !scanner.Scan() {
		return nil, ErrNoSnapshot
	}
	var header SessionHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, err
	}
	if header.Type != headerTypeSessionStart {
		return nil, fmt.Errorf("save %s: missing session_start header", id)
	}
	return &header, nil
}

func (fs *FileStore) openByID(id string) (*os.File, error) {
	// The id comes from the wire; keep it inside the saves dir.
	if id == "" || id != filepath.Base(id) || strings.Contains(id, "..") {
		return nil, ErrSaveNotFound
	}
	f, err := os.Open(filepath.Join(fs.dir, id+saveFileExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSaveNotFound
		}
		return nil, err
	}
	return f, nil
}

// fileSaveLog appends one JSON object per line.
type fileSaveLog struct {
	id    string
	file  *os.File
	mutex sync.Mutex
}

func (l *fileSaveLog) ID() string {
	return l.id
}

func (l *fileSaveLog) AppendSnapshot(rec SnapshotRecord) error {
	return l.appendLine(rec)
}

func (l *fileSaveLog) AppendRollback(rec RollbackRecord) error {
	rec.Type = recordTypeRollback
	return l.appendLine(rec)
}

func (l *fileSaveLog) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.file.Close()
}

func (l *fileSaveLog) appendLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append save %s: %w", l.id, err)
	}
	return nil
}
