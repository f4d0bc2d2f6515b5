package codepool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

const defaultGenerationAttempts = 5

// Allocation is the ordered set of codes chosen for one order line.
type Allocation struct {
	Codes []string
	// Shortfall counts purchased units that could not be served from a fixed pool.
	Shortfall int
}

// Generator produces a single candidate code.
type Generator func() (string, error)

// Options tunes allocation policy.
type Options struct {
	StrictFixedPool    bool
	GenerationAttempts int
	Generator          Generator
}

// Manager selects (fixed pool) or synthesizes (generate on demand) codes. It
// only reads; callers persist the chosen codes in the same transaction so the
// unique index on gift_codes.value arbitrates concurrent approvals.
type Manager struct {
	strict   bool
	attempts int
	generate Generator
}

func NewManager(opts Options) *Manager {
	attempts := opts.GenerationAttempts
	if attempts <= 0 {
		attempts = defaultGenerationAttempts
	}
	gen := opts.Generator
	if gen == nil {
		gen = RandomToken
	}
	return &Manager{strict: opts.StrictFixedPool, attempts: attempts, generate: gen}
}

// RandomToken returns a 32 character hex token backed by crypto/rand.
func RandomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), nil
}

// Allocate returns qty codes for listing, or fewer with a Shortfall when a
// fixed pool runs dry and strict mode is off.
func (m *Manager) Allocate(ctx context.Context, tx *gorm.DB, listing models.Listing, qty int) (Allocation, error) {
	if tx == nil {
		return Allocation{}, fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return Allocation{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	switch listing.CodeMode {
	case enums.CodeModeFixedPool:
		return m.allocateFixed(ctx, tx, listing, qty)
	case enums.CodeModeGenerateOnDemand:
		return m.generateUnique(ctx, tx, qty)
	default:
		return Allocation{}, pkgerrors.New(pkgerrors.CodeInvalidListing, "listing has unknown code mode").
			WithDetails(map[string]any{"listing_id": listing.ID.String(), "code_mode": string(listing.CodeMode)})
	}
}

func (m *Manager) allocateFixed(ctx context.Context, tx *gorm.DB, listing models.Listing, qty int) (Allocation, error) {
	declared := ParseDeclaredCodes(deref(listing.DeclaredCodes))
	taken, err := existingValues(ctx, tx, declared)
	if err != nil {
		return Allocation{}, err
	}

	available := make([]string, 0, len(declared))
	for _, code := range declared {
		if _, used := taken[code]; !used {
			available = append(available, code)
		}
	}
	sort.Strings(available)

	if len(available) >= qty {
		return Allocation{Codes: available[:qty]}, nil
	}

	shortfall := qty - len(available)
	if m.strict {
		return Allocation{}, exhausted(listing.ID, qty, len(available))
	}
	return Allocation{Codes: available, Shortfall: shortfall}, nil
}

func (m *Manager) generateUnique(ctx context.Context, tx *gorm.DB, qty int) (Allocation, error) {
	chosen := make([]string, 0, qty)
	seen := make(map[string]struct{}, qty)

	for attempt := 0; attempt < m.attempts && len(chosen) < qty; attempt++ {
		need := qty - len(chosen)
		candidates := make([]string, 0, need)
		for i := 0; i < need; i++ {
			token, err := m.generate()
			if err != nil {
				return Allocation{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			candidates = append(candidates, token)
		}

		taken, err := existingValues(ctx, tx, candidates)
		if err != nil {
			return Allocation{}, err
		}
		for _, token := range candidates {
			if _, collision := taken[token]; !collision {
				chosen = append(chosen, token)
			}
		}
	}

	if len(chosen) < qty {
		return Allocation{}, pkgerrors.New(pkgerrors.CodeCodePoolExhausted, "could not generate unique codes").
			WithDetails(map[string]any{"requested": qty, "generated": len(chosen)})
	}
	return Allocation{Codes: chosen}, nil
}

// existingValues returns which of values are already issued anywhere.
func existingValues(ctx context.Context, tx *gorm.DB, values []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(values) == 0 {
		return out, nil
	}
	var found []string
	if err := tx.WithContext(ctx).
		Model(&models.GiftCode{}).
		Where("value IN ?", values).
		Pluck("value", &found).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load issued codes")
	}
	for _, v := range found {
		out[v] = struct{}{}
	}
	return out, nil
}

// ParseDeclaredCodes splits seller-supplied codes on ';', ',' or newlines,
// trimming blanks and dropping duplicates while keeping first-seen order.
func ParseDeclaredCodes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		code := strings.TrimSpace(f)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func exhausted(listingID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeCodePoolExhausted, "fixed code pool cannot cover the purchased quantity").
		WithDetails(map[string]any{
			"listing_id": listingID.String(),
			"requested":  requested,
			"available":  available,
		})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
