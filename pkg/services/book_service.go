package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/store"
	"github.com/google/uuid"
)

// CreateBookInput contains the domain-level data needed to create a book.
// Transformed from the HTTP request + auth context by the handler.
type CreateBookInput struct {
	UserID        string // From the verified bearer token
	BookOne       string
	BookTwo       string
	World         string
	MainCharacter string
	Genre         string
}

// BookService handles book creation and ownership-checked reads.
type BookService struct {
	store store.BookStore
}

// NewBookService creates a new BookService.
func NewBookService(st store.BookStore) *BookService {
	if st == nil {
		panic("NewBookService: store must not be nil")
	}
	return &BookService{store: st}
}

// CreateBook creates an empty book owned by the authenticated user. The plan
// and story are produced lazily on the first story request.
func (s *BookService) CreateBook(ctx context.Context, input CreateBookInput) (*models.Book, error) {
	if input.UserID == "" {
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	book := &models.Book{
		ID:            uuid.New().String(),
		UserID:        input.UserID,
		BookOne:       strings.TrimSpace(input.BookOne),
		BookTwo:       strings.TrimSpace(input.BookTwo),
		World:         strings.TrimSpace(input.World),
		MainCharacter: strings.TrimSpace(input.MainCharacter),
		Genre:         strings.TrimSpace(input.Genre),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Insert(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	return book, nil
}

// GetOwnedBook loads a book and enforces that it belongs to the given user.
func (s *BookService) GetOwnedBook(ctx context.Context, bookID, userID string) (*models.Book, error) {
	if bookID == "" {
		return nil, NewValidationError("id", "required")
	}
	if userID == "" {
		return nil, ErrUnauthorized
	}

	book, err := s.store.Get(ctx, bookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load book: %w", err)
	}

	if book.UserID != userID {
		return nil, ErrForbidden
	}

	return book, nil
}
