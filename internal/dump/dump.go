// Package dump locates conversation dumps on disk and groups sibling dumps
// of the same session. Dump directories follow the capture-side naming
// convention <YYYYMMDD>_<HHMMSS>_<session-prefix>; the conversation file
// inside is a line-oriented record file.
package dump

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// dirTimeLayout is the timestamp embedded in dump directory names,
// e.g. 20260124_143022_abc12345.
const dirTimeLayout = "20060102_150405"

// conversationFile is the canonical record file name inside a dump directory.
const conversationFile = "conversation.jsonl"

// ErrNoDump is returned when no usable conversation dump can be located.
var ErrNoDump = errors.New("no usable conversation dump found")

// Dump is one capture of a session's conversation state.
type Dump struct {
	// Dir is the dump directory.
	Dir string
	// File is the conversation record file inside Dir.
	File string
	// Captured is the capture time parsed from the directory name. Zero when
	// the directory does not follow the naming convention.
	Captured time.Time
	// SizeKB is the record file size in whole kilobytes.
	SizeKB int64
}

// Session groups the sibling dumps of one logical session, ordered by
// capture time ascending.
type Session struct {
	// Prefix is the session identifier prefix from the directory naming
	// convention. Empty when the located dump does not follow it.
	Prefix string
	// Root is the directory holding the sibling dump directories.
	Root string
	// Dumps is the ordered capture sequence. Never empty for a located
	// session.
	Dumps []Dump
}

// MatchesSession reports whether a full session identifier found inside a
// record belongs to this session. IDs are validated as UUIDs and compared
// against the directory-name prefix.
func (s *Session) MatchesSession(id string) bool {
	if s.Prefix == "" || id == "" {
		return true
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return strings.HasPrefix(parsed.String(), strings.ToLower(s.Prefix))
}

// Resolver picks the dump to analyze when no explicit path was given. It
// returns the path of a conversation file or dump directory under root.
type Resolver func(root string) (string, error)

// MtimeResolver returns the most recently modified conversation file under
// root's dump area. It searches <root>/.claude/context-dumps when that
// exists, otherwise root itself.
func MtimeResolver(root string) (string, error) {
	searchRoot := filepath.Join(root, ".claude", "context-dumps")
	if _, err := os.Stat(searchRoot); err != nil {
		searchRoot = root
	}

	entries, err := os.ReadDir(searchRoot)
	if err != nil {
		return "", fmt.Errorf("read dump root: %w", err)
	}

	var (
		latest     string
		latestTime time.Time
	)
	consider := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = path
			latestTime = info.ModTime()
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			if file, err := findConversationFile(filepath.Join(searchRoot, entry.Name())); err == nil {
				consider(file)
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".jsonl") {
			consider(filepath.Join(searchRoot, entry.Name()))
		}
	}

	if latest == "" {
		return "", ErrNoDump
	}
	return latest, nil
}

// LocateLatest resolves the dump to analyze via resolve and groups its
// siblings. A nil resolve uses MtimeResolver.
func LocateLatest(root string, resolve Resolver) (*Session, error) {
	if resolve == nil {
		resolve = MtimeResolver
	}
	path, err := resolve(root)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("Auto-detected most recent dump")
	return Locate(path)
}

// Locate builds the Session for path, which may be a conversation file or a
// dump directory. Sibling dumps are directories under the same parent whose
// names carry the same session prefix; they are ordered by the capture time
// embedded in the name.
func Locate(path string) (*Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDump, path)
	}

	var dir, file string
	if info.IsDir() {
		dir = path
		file, err = findConversationFile(dir)
		if err != nil {
			return nil, err
		}
	} else {
		file = path
		dir = filepath.Dir(path)
	}

	captured, prefix, ok := parseDirName(filepath.Base(dir))
	if !ok {
		// A stray file outside the naming convention is still analyzable,
		// just without sibling discovery.
		d, err := describeDump(dir, file)
		if err != nil {
			return nil, err
		}
		return &Session{Root: filepath.Dir(dir), Dumps: []Dump{d}}, nil
	}

	session := &Session{
		Prefix: prefix,
		Root:   filepath.Dir(dir),
	}

	entries, err := os.ReadDir(session.Root)
	if err != nil {
		return nil, fmt.Errorf("read dump root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryTime, entryPrefix, ok := parseDirName(entry.Name())
		if !ok {
			continue
		}
		if entryPrefix != prefix {
			continue
		}
		sibDir := filepath.Join(session.Root, entry.Name())
		sibFile, err := findConversationFile(sibDir)
		if err != nil {
			log.Warn().Str("dir", sibDir).Msg("Sibling dump has no conversation file")
			continue
		}
		d, err := describeDump(sibDir, sibFile)
		if err != nil {
			log.Warn().Err(err).Str("dir", sibDir).Msg("Skipping unreadable sibling dump")
			continue
		}
		d.Captured = entryTime
		session.Dumps = append(session.Dumps, d)
	}

	if len(session.Dumps) == 0 {
		// The located dump itself always counts even if the root scan raced
		// with a cleanup.
		d, err := describeDump(dir, file)
		if err != nil {
			return nil, err
		}
		d.Captured = captured
		session.Dumps = []Dump{d}
	}

	sort.SliceStable(session.Dumps, func(i, j int) bool {
		return session.Dumps[i].Captured.Before(session.Dumps[j].Captured)
	})
	return session, nil
}

// findConversationFile returns the record file inside a dump directory:
// conversation.jsonl when present, otherwise the first .jsonl file by name.
func findConversationFile(dir string) (string, error) {
	canonical := filepath.Join(dir, conversationFile)
	if _, err := os.Stat(canonical); err == nil {
		return canonical, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoDump, dir)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoDump, dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// describeDump stats the record file and fills everything but Captured.
func describeDump(dir, file string) (Dump, error) {
	info, err := os.Stat(file)
	if err != nil {
		return Dump{}, fmt.Errorf("stat dump file: %w", err)
	}
	return Dump{
		Dir:    dir,
		File:   file,
		SizeKB: info.Size() / 1024,
	}, nil
}

// parseDirName splits <YYYYMMDD>_<HHMMSS>_<prefix> into capture time and
// session prefix.
func parseDirName(name string) (time.Time, string, bool) {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 || parts[2] == "" {
		return time.Time{}, "", false
	}
	ts, err := time.ParseInLocation(dirTimeLayout, parts[0]+"_"+parts[1], time.Local)
	if err != nil {
		log.Warn().Str("dir", name).Msg("Dump directory name has malformed timestamp")
		return time.Time{}, "", false
	}
	return ts, parts[2], true
}
