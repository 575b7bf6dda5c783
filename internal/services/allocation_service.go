package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/store"
	"github.com/markdave123-py/pawls/internal/models"
)

type AllocationService struct {
	docs   core.DocumentStore
	status core.StatusStore
	access *AccessControl
	logger *slog.Logger
}

func NewAllocationService(docs core.DocumentStore, status core.StatusStore, access *AccessControl, logger *slog.Logger) *AllocationService {
	return &AllocationService{docs: docs, status: status, access: access, logger: logger}
}

func (s *AllocationService) GetAllocation(identity *string) (*models.Allocation, error) {
	user, err := s.access.ResolveIdentity(identity)
	if err != nil {
		return nil, err
	}
	return s.AllocationFor(user)
}

// AllocationFor builds the allocation of an already resolved user. Users
// without a status record see every document but own none of them.
func (s *AllocationService) AllocationFor(user string) (*models.Allocation, error) {
	entries, err := s.status.Load(user)
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	case errors.Is(err, store.ErrNotExist):
		return s.unallocated()
	case err != nil:
		return nil, err
	}

	papers := make([]models.PaperStatus, 0, len(entries))
	for _, e := range entries {
		var st models.PaperStatus
		if err := json.Unmarshal(e.Raw, &st); err != nil {
			return nil, fmt.Errorf("status of %s for %s: %w", e.Sha, user, err)
		}
		if st.Sha == "" {
			st.Sha = e.Sha
		}
		if st.Name == "" {
			st.Name = e.Sha
		}
		papers = append(papers, st)
	}
	return &models.Allocation{Papers: papers, HasAllocatedPapers: true}, nil
}

func (s *AllocationService) unallocated() (*models.Allocation, error) {
	shas, err := s.docs.ListIdentifiers()
	if err != nil {
		return nil, err
	}
	papers := make([]models.PaperStatus, 0, len(shas))
	for _, sha := range shas {
		papers = append(papers, models.EmptyPaperStatus(sha, sha))
	}
	return &models.Allocation{Papers: papers, HasAllocatedPapers: false}, nil
}

func (s *AllocationService) SetComment(sha string, identity *string, comments string) error {
	return s.setField(sha, identity, "comments", comments)
}

func (s *AllocationService) SetJunk(sha string, identity *string, junk bool) error {
	return s.setField(sha, identity, "junk", junk)
}

// setField does nothing for users without a status record.
func (s *AllocationService) setField(sha string, identity *string, field string, value any) error {
	user, err := s.access.ResolveIdentity(identity)
	if err != nil {
		return err
	}

	ok, err := s.status.SetField(user, sha, field, value)
	if errors.Is(err, store.ErrInvalidKey) {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("no status record, ignoring update", "user", user, "sha", sha, "field", field)
		return nil
	}
	s.logger.Info("status updated", "user", user, "sha", sha, "field", field)
	return nil
}

// Assign allocates documents to user, creating the status record if needed.
// With no shas every stored document is assigned. Existing entries are kept.
func (s *AllocationService) Assign(user string, shas []string) (int, error) {
	if len(shas) == 0 {
		all, err := s.docs.ListIdentifiers()
		if err != nil {
			return 0, err
		}
		shas = all
	}

	entries := make([]core.StatusEntry, 0, len(shas))
	for _, sha := range shas {
		name := sha
		if title := lookupTitle(s.docs, s.logger, sha); title != nil {
			name = *title
		}
		raw, err := json.Marshal(models.EmptyPaperStatus(sha, name))
		if err != nil {
			return 0, err
		}
		entries = append(entries, core.StatusEntry{Sha: sha, Raw: raw})
	}

	added, err := s.status.Append(user, entries)
	if errors.Is(err, store.ErrInvalidKey) {
		return 0, fmt.Errorf("%w: user %q", ErrInvalidRequest, user)
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("papers assigned", "user", user, "requested", len(shas), "added", added)
	return added, nil
}
