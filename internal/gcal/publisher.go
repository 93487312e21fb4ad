package gcal

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/dftm/dftm-calendar/internal/models"
)

// EventStore is the part of the Events API the publisher needs.
type EventStore interface {
	// FindByTaskID returns the event carrying taskID in its private
	// properties, or nil when there is none.
	FindByTaskID(ctx context.Context, taskID string) (*calendar.Event, error)
	Insert(ctx context.Context, event *calendar.Event) (*calendar.Event, error)
	Patch(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error)
}

// NewService authenticates with a service account or authorized
// user JSON key read from credentialsFile.
func NewService(ctx context.Context, credentialsFile string) (*calendar.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", credentialsFile, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	ts := oauth2.ReuseTokenSource(nil, creds.TokenSource)
	srv, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

type apiStore struct {
	srv        *calendar.Service
	calendarID string
}

// NewEventStore returns an EventStore backed by calendarID.
func NewEventStore(srv *calendar.Service, calendarID string) EventStore {
	return &apiStore{srv: srv, calendarID: calendarID}
}

func (s *apiStore) FindByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := s.srv.Events.List(s.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

func (s *apiStore) Insert(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	return s.srv.Events.Insert(s.calendarID, event).Context(ctx).Do()
}

func (s *apiStore) Patch(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return s.srv.Events.Patch(s.calendarID, eventID, patch).Context(ctx).Do()
}

type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

type Publisher struct {
	logger zerolog.Logger
	store  EventStore
	lang   models.Language
}

func NewPublisher(logger zerolog.Logger, store EventStore, lang models.Language) *Publisher {
	return &Publisher{logger: logger, store: store, lang: lang}
}

// Publish upserts one event per publishable task. Other tasks are
// counted as skipped. It stops at the first API error.
func (p *Publisher) Publish(ctx context.Context, tasks []models.Task) (Result, error) {
	var res Result
	for _, task := range tasks {
		if !Publishable(task) {
			res.Skipped++
			continue
		}

		created, updated, err := p.publish(ctx, task)
		if err != nil {
			p.logger.Error().
				Err(err).
				Str("task_id", task.ID).
				Msg("failed to publish task")
			return res, err
		}
		switch {
		case created:
			res.Created++
		case updated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	p.logger.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("skipped", res.Skipped).
		Msg("published tasks to calendar")
	return res, nil
}

func (p *Publisher) publish(ctx context.Context, task models.Task) (created, updated bool, err error) {
	target, err := EventFromTask(task, p.lang)
	if err != nil {
		return false, false, err
	}

	existing, err := p.store.FindByTaskID(ctx, task.ID)
	if err != nil {
		return false, false, fmt.Errorf("search event: %w", err)
	}

	if existing == nil {
		if _, err = p.store.Insert(ctx, target); err != nil {
			return false, false, fmt.Errorf("insert event: %w", err)
		}
		p.logger.Debug().Str("task_id", task.ID).Msg("inserted calendar event")
		return true, false, nil
	}

	patch := diff(existing, target)
	if patch == nil {
		return false, false, nil
	}
	if _, err = p.store.Patch(ctx, existing.Id, patch); err != nil {
		return false, false, fmt.Errorf("patch event %s: %w", existing.Id, err)
	}
	p.logger.Debug().
		Str("task_id", task.ID).
		Str("event_id", existing.Id).
		Msg("patched calendar event")
	return false, true, nil
}
