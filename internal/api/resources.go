package api

import (
	"context"
	"time"

	"github.com/devrev/adaptivenet/internal/cache"
	"github.com/devrev/adaptivenet/internal/model"
	"golang.org/x/sync/errgroup"
)

// Resource names, used for cache keys, metrics labels and TTL overrides
const (
	ResourceListings   = "listings"
	ResourceListing    = "listing"
	ResourceBulk       = "listings_bulk"
	ResourceSearch     = "search"
	ResourceMessages   = "messages"
	ResourceCategories = "categories"
	ResourceCreate     = "create_listing"
	ResourceUpdate     = "update_listing"
	ResourceSend       = "send_message"
	ResourceProfile    = "update_profile"
	ResourceFavorite   = "favorite_listing"
)

// BulkChunkSize is the number of ids fetched per batched sub-request
const BulkChunkSize = 10

var defaultTTLs = map[string]time.Duration{
	ResourceListings:   5 * time.Minute,
	ResourceListing:    10 * time.Minute,
	ResourceBulk:       5 * time.Minute,
	ResourceSearch:     5 * time.Minute,
	ResourceMessages:   2 * time.Minute,
	ResourceCategories: 60 * time.Minute,
}

func (s *Service) read(resource string, priority model.Priority) resourceDefaults {
	return resourceDefaults{
		priority: priority,
		caching:  true,
		ttl:      s.ttlFor(resource, defaultTTLs[resource]),
	}
}

func withKey(opts Options, resource string, params ...any) Options {
	if opts.CacheKey == "" {
		opts.CacheKey = cache.Key(resource, params...)
	}
	return opts
}

func withSync(opts Options, itemType model.SyncItemType, data any) Options {
	if opts.SyncType == "" {
		opts.SyncType = itemType
	}
	if opts.SyncData == nil {
		opts.SyncData = data
	}
	return opts
}

// GetListings lists listings matching filters. Cached 5 minutes, medium priority.
func (s *Service) GetListings(ctx context.Context, filters model.ListingFilters, opts Options) ([]model.Listing, error) {
	opts = withKey(opts, ResourceListings, filters).withDefaults(s.read(ResourceListings, model.PriorityMedium))
	return Request(ctx, s, ResourceListings, func(ctx context.Context) ([]model.Listing, error) {
		return s.backend.ListListings(ctx, filters)
	}, opts)
}

// GetListing fetches one listing. Cached 10 minutes, high priority.
func (s *Service) GetListing(ctx context.Context, id string, opts Options) (*model.Listing, error) {
	opts = withKey(opts, ResourceListing, id).withDefaults(s.read(ResourceListing, model.PriorityHigh))
	return Request(ctx, s, ResourceListing, func(ctx context.Context) (*model.Listing, error) {
		return s.backend.GetListing(ctx, id)
	}, opts)
}

// SearchListings runs a text search. Cached 5 minutes, medium priority.
func (s *Service) SearchListings(ctx context.Context, query string, filters model.ListingFilters, opts Options) ([]model.Listing, error) {
	opts = withKey(opts, ResourceSearch, query, filters).withDefaults(s.read(ResourceSearch, model.PriorityMedium))
	return Request(ctx, s, ResourceSearch, func(ctx context.Context) ([]model.Listing, error) {
		return s.backend.SearchListings(ctx, query, filters)
	}, opts)
}

// GetMessages lists a conversation. Cached 2 minutes, high priority.
func (s *Service) GetMessages(ctx context.Context, conversationID string, opts Options) ([]model.Message, error) {
	opts = withKey(opts, ResourceMessages, conversationID).withDefaults(s.read(ResourceMessages, model.PriorityHigh))
	return Request(ctx, s, ResourceMessages, func(ctx context.Context) ([]model.Message, error) {
		return s.backend.ListMessages(ctx, conversationID)
	}, opts)
}

// GetCategories lists categories. Cached 60 minutes, low priority.
func (s *Service) GetCategories(ctx context.Context, opts Options) ([]model.Category, error) {
	opts = withKey(opts, ResourceCategories).withDefaults(s.read(ResourceCategories, model.PriorityLow))
	return Request(ctx, s, ResourceCategories, func(ctx context.Context) ([]model.Category, error) {
		return s.backend.ListCategories(ctx)
	}, opts)
}

// BulkGetListings fetches listings by id in batched sub-requests of
// BulkChunkSize ids. Results keep the order of the chunks.
func (s *Service) BulkGetListings(ctx context.Context, ids []string, opts Options) ([]model.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += BulkChunkSize {
		end := start + BulkChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]model.Listing, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		chunkOpts := opts
		chunkOpts.CacheKey = ""
		chunkOpts = withKey(chunkOpts, ResourceBulk, chunk).withDefaults(s.read(ResourceBulk, model.PriorityMedium))

		g.Go(func() error {
			listings, err := BatchRequest(gctx, s, ResourceBulk, func(ctx context.Context) ([]model.Listing, error) {
				return s.backend.GetListingsByIDs(ctx, chunk)
			}, chunkOpts)
			if err != nil {
				return err
			}
			results[i] = listings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listings := make([]model.Listing, 0, len(ids))
	for _, r := range results {
		listings = append(listings, r...)
	}
	return listings, nil
}

// CreateListing creates a listing. Not cached; queued offline on
// connectivity failure and the error is still returned.
func (s *Service) CreateListing(ctx context.Context, input model.ListingInput, opts Options) (*model.Listing, error) {
	opts = withSync(opts, model.SyncCreateListing, input).withDefaults(writeDefaults)
	return Request(ctx, s, ResourceCreate, func(ctx context.Context) (*model.Listing, error) {
		return s.backend.CreateListing(ctx, input)
	}, opts)
}

// UpdateListing applies updates to a listing
func (s *Service) UpdateListing(ctx context.Context, id string, updates model.ListingInput, opts Options) (*model.Listing, error) {
	opts = withSync(opts, model.SyncUpdateListing, map[string]any{
		"id":      id,
		"updates": updates,
	}).withDefaults(writeDefaults)
	return Request(ctx, s, ResourceUpdate, func(ctx context.Context) (*model.Listing, error) {
		return s.backend.UpdateListing(ctx, id, updates)
	}, opts)
}

// SendMessage posts a message to a conversation
func (s *Service) SendMessage(ctx context.Context, input model.MessageInput, opts Options) (*model.Message, error) {
	opts = withSync(opts, model.SyncSendMessage, input).withDefaults(writeDefaults)
	return Request(ctx, s, ResourceSend, func(ctx context.Context) (*model.Message, error) {
		return s.backend.SendMessage(ctx, input)
	}, opts)
}

// UpdateProfile edits the user's profile
func (s *Service) UpdateProfile(ctx context.Context, userID string, input model.ProfileInput, opts Options) (*model.Profile, error) {
	opts = withSync(opts, model.SyncUpdateProfile, map[string]any{
		"user_id": userID,
		"updates": input,
	}).withDefaults(writeDefaults)
	return Request(ctx, s, ResourceProfile, func(ctx context.Context) (*model.Profile, error) {
		return s.backend.UpdateProfile(ctx, userID, input)
	}, opts)
}

// FavoriteListing marks a listing as a favorite of userID
func (s *Service) FavoriteListing(ctx context.Context, userID, listingID string, opts Options) error {
	opts = withSync(opts, model.SyncFavoriteListing, map[string]any{
		"user_id":    userID,
		"listing_id": listingID,
	}).withDefaults(writeDefaults)
	_, err := Request(ctx, s, ResourceFavorite, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.FavoriteListing(ctx, userID, listingID)
	}, opts)
	return err
}
