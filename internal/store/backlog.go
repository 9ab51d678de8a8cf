package store

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
)

// BacklogStore persists the human-submitted backlog as a bare ordered list
// (no wrapper object).
type BacklogStore struct {
	path    string
	lockMap *lock.MutexMap
}

func NewBacklogStore(path string, lockMap *lock.MutexMap) *BacklogStore {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	return &BacklogStore{path: path, lockMap: lockMap}
}

// Load reads the item list. A missing file degrades to an empty list.
func (s *BacklogStore) Load() ([]model.BacklogItem, error) {
	var items []model.BacklogItem
	err := jsonfile.Read(s.path, &items)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, s.path, err)
	}
	return items, nil
}

// NextItem selects the next human-backlog item to work on. The cascade
// short-circuits at the first match:
//
//  1. any in_progress item (resume interrupted work; file order wins)
//  2. the first backlog-status item scanning critical → low
//  3. the first not-yet-completed item scanning critical → low,
//     ignoring status
//  4. the first remaining incomplete item in file order
//
// Pass 3 overlaps pass 4 in most inputs; both are kept so the observable
// behavior stays exactly as documented. The cascade guarantees a non-nil
// result whenever any incomplete item exists.
func (s *BacklogStore) NextItem() (*model.BacklogItem, error) {
	items, err := s.Load()
	if err != nil {
		return nil, err
	}

	// Pass 1: resume interrupted work.
	for i := range items {
		if items[i].Status == model.BacklogStatusInProgress {
			item := items[i]
			return &item, nil
		}
	}

	// Pass 2: first backlog-status item by priority rank.
	for _, p := range model.BacklogPriorityOrder {
		for i := range items {
			if items[i].Status == model.BacklogStatusBacklog && items[i].Priority == p {
				item := items[i]
				return &item, nil
			}
		}
	}

	// Pass 3: first incomplete item by priority rank, status ignored.
	for _, p := range model.BacklogPriorityOrder {
		for i := range items {
			if !items[i].Completed && items[i].Priority == p {
				item := items[i]
				return &item, nil
			}
		}
	}

	// Pass 4: first incomplete item in file order.
	for i := range items {
		if !items[i].Completed {
			item := items[i]
			return &item, nil
		}
	}

	return nil, nil
}

// Add appends a new item and persists.
func (s *BacklogStore) Add(itemType model.BacklogType, priority model.BacklogPriority, description, details string) (*model.BacklogItem, error) {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	items, err := s.Load()
	if err != nil {
		return nil, err
	}

	item := model.BacklogItem{
		ID:          "bl-" + uuid.NewString()[:8],
		Type:        itemType,
		Priority:    priority,
		Status:      model.BacklogStatusBacklog,
		Description: description,
		Details:     details,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	items = append(items, item)

	if err := jsonfile.Write(s.path, items); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddComment appends a comment to an item. Comments are append-only.
func (s *BacklogStore) AddComment(id string, author model.Setter, text string) error {
	return s.mutate(id, func(item *model.BacklogItem) {
		item.Comments = append(item.Comments, model.Comment{
			Author:    author,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Text:      text,
		})
	})
}

// MarkInProgress moves an item to in_progress.
func (s *BacklogStore) MarkInProgress(id string) error {
	return s.mutate(id, func(item *model.BacklogItem) {
		item.Status = model.BacklogStatusInProgress
	})
}

// MarkBlocked moves an item to blocked and appends a system-authored
// comment recording the reason. This is the only operation that
// synthesizes a comment automatically.
func (s *BacklogStore) MarkBlocked(id, reason string) error {
	return s.mutate(id, func(item *model.BacklogItem) {
		item.Status = model.BacklogStatusBlocked
		item.Comments = append(item.Comments, model.Comment{
			Author:    model.SetterSystem,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Text:      "blocked: " + reason,
		})
	})
}

// MarkComplete moves an item to done and sets the completion flag and
// timestamp. completed == true iff status == done.
func (s *BacklogStore) MarkComplete(id string) error {
	return s.mutate(id, func(item *model.BacklogItem) {
		now := time.Now().UTC().Format(time.RFC3339)
		item.Status = model.BacklogStatusDone
		item.Completed = true
		item.CompletedAt = &now
	})
}

func (s *BacklogStore) mutate(id string, fn func(*model.BacklogItem)) error {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingStore, s.path)
	}
	items, err := s.Load()
	if err != nil {
		return err
	}

	for i := range items {
		if items[i].ID == id {
			fn(&items[i])
			return jsonfile.Write(s.path, items)
		}
	}
	return fmt.Errorf("%w: backlog item %s", ErrNotFound, id)
}
