package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"sales-portal/blobstore"
	"sales-portal/domain"
)

const usersCollection = "users"

// Representatives is the user directory the portal reads representatives from.
type Representatives struct {
	store       blobstore.Store
	logger      *log.Logger
	concurrency int
	now         func() time.Time
}

// NewRepresentatives creates the directory.
func NewRepresentatives(store blobstore.Store, logger *log.Logger) *Representatives {
	if logger == nil {
		logger = log.New()
	}
	return &Representatives{store: store, logger: logger, concurrency: defaultFetchConcurrency, now: time.Now}
}

// Upsert creates or replaces a representative keyed by email.
func (r *Representatives) Upsert(ctx context.Context, rep domain.Representative) (domain.Representative, error) {
	rep.Name = strings.TrimSpace(rep.Name)
	rep.Email = strings.ToLower(strings.TrimSpace(rep.Email))
	rep.Skillset = strings.TrimSpace(rep.Skillset)
	rep.Status = strings.ToLower(strings.TrimSpace(rep.Status))
	if rep.Name == "" || rep.Email == "" {
		return domain.Representative{}, fmt.Errorf("%w: representative needs a name and an email", domain.ErrValidation)
	}
	if !strings.Contains(rep.Email, "@") {
		return domain.Representative{}, fmt.Errorf("%w: invalid email %q", domain.ErrValidation, rep.Email)
	}
	switch rep.Status {
	case "":
		rep.Status = domain.RepresentativeActive
	case domain.RepresentativeActive, domain.RepresentativeInactive:
	default:
		return domain.Representative{}, fmt.Errorf("%w: unknown representative status %q", domain.ErrValidation, rep.Status)
	}
	rep.SchemaVersion = domain.SchemaVersion
	rep.UpdatedAt = r.now().UTC()

	if err := blobstore.PutJSON(context.WithoutCancel(ctx), r.store, blobstore.Key(usersCollection, rep.Email), rep); err != nil {
		return domain.Representative{}, err
	}
	r.logger.WithFields(log.Fields{"email": rep.Email, "status": rep.Status}).Info("representative saved")
	return rep, nil
}

// Get loads a representative by email.
func (r *Representatives) Get(ctx context.Context, email string) (domain.Representative, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var rep domain.Representative
	err := blobstore.GetJSON(ctx, r.store, blobstore.Key(usersCollection, email), &rep)
	if errors.Is(err, blobstore.ErrNotFound) {
		return domain.Representative{}, fmt.Errorf("%w: representative %s", domain.ErrNotFound, email)
	}
	return rep, err
}

// List returns every representative ordered by name.
func (r *Representatives) List(ctx context.Context) ([]domain.Representative, error) {
	keys, err := r.store.List(ctx, blobstore.Prefix(usersCollection))
	if err != nil {
		return nil, err
	}
	reps, err := fetchAll[domain.Representative](ctx, r.store, keys, r.concurrency)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reps, func(i, j int) bool {
		if !strings.EqualFold(reps[i].Name, reps[j].Name) {
			return strings.ToLower(reps[i].Name) < strings.ToLower(reps[j].Name)
		}
		return reps[i].Email < reps[j].Email
	})
	return reps, nil
}

// Members resolves emails to member snapshots. Unknown or inactive
// representatives are rejected.
func (r *Representatives) Members(ctx context.Context, emails []string) ([]domain.Member, error) {
	if len(emails) == 0 {
		return nil, fmt.Errorf("%w: at least one representative is required", domain.ErrValidation)
	}
	out := make([]domain.Member, 0, len(emails))
	seen := map[string]bool{}
	for _, email := range emails {
		rep, err := r.Get(ctx, email)
		if err != nil {
			return nil, err
		}
		if !rep.Active() {
			return nil, fmt.Errorf("%w: representative %s is %s", domain.ErrValidation, rep.Email, rep.Status)
		}
		if seen[rep.Email] {
			continue
		}
		seen[rep.Email] = true
		out = append(out, rep.Member())
	}
	return out, nil
}
