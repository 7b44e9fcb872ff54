package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// EntryService validates and normalizes journal entries before they reach
// the store. Ownership is enforced by the store: every call is scoped to
// the authenticated user's partition.
type EntryService struct {
	repo      repository.EntryRepository
	sanitizer *Sanitizer
	recorder  Recorder
	logger    *slog.Logger
}

// NewEntryService returns an EntryService over repo. A nil recorder is
// replaced with a no-op one.
func NewEntryService(repo repository.EntryRepository, recorder Recorder, logger *slog.Logger) *EntryService {
	return &EntryService{
		repo:      repo,
		sanitizer: NewSanitizer(),
		recorder:  recorderOrNop(recorder),
		logger:    logger,
	}
}

// List returns the user's entries. sort is the API's sort parameter
// ("-date" by default); a limit of zero means all entries.
func (s *EntryService) List(ctx context.Context, userID, sort string, limit int) ([]model.Entry, error) {
	if limit < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
	}

	entries, err := s.repo.ListEntries(ctx, userID, repository.ListOptions{
		Sort:  repository.ParseSort(sort),
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("service/entry: listing entries: %w", err)
	}
	return entries, nil
}

// Create fills defaults for missing fields and stores the entry:
//
//	title            "Untitled"
//	content          ""
//	mood             null (also for "")
//	themes           themes, else the tags alias, else []
//	milestone        false
//	lessons_learned  ""
//	ai_insights      ""
//	date             now
func (s *EntryService) Create(ctx context.Context, userID string, in model.EntryInput) (*model.Entry, error) {
	entry := &model.Entry{
		Title:  model.DefaultEntryTitle,
		Themes: []string{},
	}

	if in.Title != nil {
		if title := s.sanitizer.PlainText(*in.Title); title != "" {
			entry.Title = title
		}
	}
	if in.Content != nil {
		entry.Content = s.sanitizer.RichText(*in.Content)
	}
	entry.Mood = s.mood(in.Mood)
	if themes := themesOf(in); themes != nil {
		entry.Themes = s.sanitizer.Themes(*themes)
	}
	if in.Milestone != nil {
		entry.Milestone = *in.Milestone
	}
	if in.LessonsLearned != nil {
		entry.LessonsLearned = s.sanitizer.PlainText(*in.LessonsLearned)
	}
	if in.AIInsights != nil {
		entry.AIInsights = s.sanitizer.PlainText(*in.AIInsights)
	}
	if in.Date != nil && *in.Date != "" {
		d, err := parseDate(*in.Date)
		if err != nil {
			return nil, err
		}
		entry.Date = d
	}
	// A zero Date is filled with the store's clock.

	if err := s.repo.CreateEntry(ctx, userID, entry); err != nil {
		return nil, fmt.Errorf("service/entry: creating entry: %w", err)
	}

	s.recorder.EntryMutation(OpCreate)
	s.logger.Info("entry created",
		slog.String("userID", userID),
		slog.String("entryID", entry.ID),
	)
	return entry, nil
}

// Update applies the fields present in in. Absent fields are untouched and
// "mood": null clears the mood.
func (s *EntryService) Update(ctx context.Context, userID, id string, in model.EntryInput) (*model.Entry, error) {
	patch := model.EntryPatch{
		Milestone: in.Milestone,
	}

	if in.Title != nil {
		title := s.sanitizer.PlainText(*in.Title)
		patch.Title = &title
	}
	if in.Content != nil {
		content := s.sanitizer.RichText(*in.Content)
		patch.Content = &content
	}
	if in.Mood.Set {
		if m := s.mood(in.Mood); m != nil {
			patch.Mood = model.NullableString{Set: true, Valid: true, Value: *m}
		} else {
			patch.Mood = model.NullableString{Set: true}
		}
	}
	if themes := themesOf(in); themes != nil {
		cleaned := s.sanitizer.Themes(*themes)
		patch.Themes = &cleaned
	}
	if in.LessonsLearned != nil {
		v := s.sanitizer.PlainText(*in.LessonsLearned)
		patch.LessonsLearned = &v
	}
	if in.AIInsights != nil {
		v := s.sanitizer.PlainText(*in.AIInsights)
		patch.AIInsights = &v
	}
	if in.Date != nil {
		d, err := parseDate(*in.Date)
		if err != nil {
			return nil, err
		}
		patch.Date = &d
	}

	entry, err := s.repo.UpdateEntry(ctx, userID, id, patch)
	if err != nil {
		return nil, fmt.Errorf("service/entry: updating entry %s: %w", id, err)
	}

	s.recorder.EntryMutation(OpUpdate)
	s.logger.Info("entry updated",
		slog.String("userID", userID),
		slog.String("entryID", id),
	)
	return entry, nil
}

// Delete removes one of the user's entries.
func (s *EntryService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteEntry(ctx, userID, id); err != nil {
		return fmt.Errorf("service/entry: deleting entry %s: %w", id, err)
	}

	s.recorder.EntryMutation(OpDelete)
	s.logger.Info("entry deleted",
		slog.String("userID", userID),
		slog.String("entryID", id),
	)
	return nil
}

// mood cleans a mood value; null and blank both mean "no mood".
func (s *EntryService) mood(n model.NullableString) *string {
	if !n.Valid {
		return nil
	}
	m := s.sanitizer.PlainText(n.Value)
	if m == "" {
		return nil
	}
	return &m
}

// themesOf prefers themes over its tags alias.
func themesOf(in model.EntryInput) *[]string {
	if in.Themes != nil {
		return in.Themes
	}
	return in.Tags
}

func parseDate(raw string) (time.Time, error) {
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed("date",
			fmt.Sprintf("Invalid date %q: use RFC 3339 or YYYY-MM-DD", raw))
	}
	return d, nil
}
