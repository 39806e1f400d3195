package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/repository"
	"gorm.io/gorm"
)

// --- In-memory repositories ---

// memStore backs both repositories. Transaction holds txMu for the whole
// callback, standing in for the listing row lock.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	nextID   uint
	bookings map[uint]*models.Booking
	listings map[uint]*models.Listing

	// afterOverlapCheck runs between the overlap query and the insert.
	afterOverlapCheck func()
	// afterBlockingRead runs once FindBlocking has taken its snapshot.
	afterBlockingRead func()
	applyFn           func(ctx context.Context, id uint, t repository.Transition) (bool, error)
}

func newMemStore(listings ...models.Listing) *memStore {
	s := &memStore{
		bookings: map[uint]*models.Booking{},
		listings: map[uint]*models.Listing{},
	}
	for i := range listings {
		l := listings[i]
		s.listings[l.ID] = &l
	}
	return s
}

func (s *memStore) seed(b models.Booking) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentUnpaid
	}
	b.CreatedAt = time.Now()
	s.bookings[b.ID] = &b
	cp := b
	return &cp
}

func (s *memStore) get(id uint) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bookings[id]
}

func (s *memStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(nil)
}

func (s *memStore) Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	booking.ID = s.nextID
	booking.CreatedAt = time.Now()
	cp := *booking
	s.bookings[booking.ID] = &cp
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) FindByPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.PaymentRef != nil && *b.PaymentRef == ref {
			cp := *b
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) FindOverlapping(ctx context.Context, tx *gorm.DB, listingID uint, start, end time.Time) (*models.Booking, error) {
	s.mu.Lock()
	var found *models.Booking
	for _, b := range s.bookings {
		if b.ListingID == listingID && b.Status.Blocks() && b.Overlaps(start, end) {
			cp := *b
			found = &cp
			break
		}
	}
	s.mu.Unlock()

	if s.afterOverlapCheck != nil {
		s.afterOverlapCheck()
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (s *memStore) FindBlocking(ctx context.Context, listingID uint) ([]models.Booking, error) {
	s.mu.Lock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.ListingID == listingID && b.Status.Blocks() {
			out = append(out, *b)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	if s.afterBlockingRead != nil {
		s.afterBlockingRead()
	}
	return out, nil
}

func (s *memStore) FindByParticipant(ctx context.Context, userID string, offset, limit int) ([]models.Booking, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Booking
	for _, b := range s.bookings {
		owner := s.listings[b.ListingID] != nil && s.listings[b.ListingID].OwnerID == userID
		if b.RenterID == userID || owner {
			all = append(all, *b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []models.Booking{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *memStore) Apply(ctx context.Context, id uint, t repository.Transition) (bool, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, id, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if t.FromStatus != "" && b.Status != t.FromStatus {
		return false, nil
	}
	if len(t.FromPayments) > 0 {
		match := false
		for _, p := range t.FromPayments {
			if b.PaymentStatus == p {
				match = true
			}
		}
		if !match {
			return false, nil
		}
	}
	if t.ToStatus != "" {
		b.Status = t.ToStatus
	}
	if t.ToPayment != "" {
		b.PaymentStatus = t.ToPayment
	}
	if t.PaymentRef != nil {
		ref := *t.PaymentRef
		b.PaymentRef = &ref
	}
	return true, nil
}

// listingStore exposes the listing half of memStore as a ListingRepository.
type listingStore struct{ *memStore }

func (s listingStore) FindByID(ctx context.Context, id uint) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (s listingStore) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Listing, error) {
	return s.FindByID(ctx, id)
}

func (s listingStore) Upsert(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *listing
	s.listings[listing.ID] = &cp
	return nil
}

func (s listingStore) Deactivate(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok {
		l.Active = false
	}
	return nil
}

// --- Mock collaborators ---

type sentNotification struct {
	UserID  string
	Kind    notify.Kind
	Payload map[string]any
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, kind notify.Kind, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{UserID: userID, Kind: kind, Payload: payload})
	return m.err
}

// mockCache versions each listing the way the Redis cache does: Invalidate
// bumps the version and Set is dropped when its version is out of date.
type mockCache struct {
	mu          sync.Mutex
	getFn       func(ctx context.Context, listingID uint) ([]models.DateRange, bool)
	versions    map[uint]int64
	sets        map[uint][]models.DateRange
	invalidated []uint
}

func (m *mockCache) Get(ctx context.Context, listingID uint) ([]models.DateRange, int64, bool) {
	m.mu.Lock()
	version := m.versions[listingID]
	m.mu.Unlock()
	if m.getFn != nil {
		ranges, ok := m.getFn(ctx, listingID)
		return ranges, version, ok
	}
	return nil, version, false
}

func (m *mockCache) Set(ctx context.Context, listingID uint, version int64, ranges []models.DateRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version != m.versions[listingID] {
		return
	}
	if m.sets == nil {
		m.sets = map[uint][]models.DateRange{}
	}
	m.sets[listingID] = ranges
}

func (m *mockCache) Invalidate(ctx context.Context, listingID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions == nil {
		m.versions = map[uint]int64{}
	}
	m.versions[listingID]++
	delete(m.sets, listingID)
	m.invalidated = append(m.invalidated, listingID)
}
