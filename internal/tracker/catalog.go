package tracker

import (
	"context"
	"errors"
	"fmt"
)

// Catalog event names.
const (
	EventAppStarted          = "app_started"
	EventLandingViewed       = "landing_viewed"
	EventLibraryOpened       = "library_opened"
	EventQRScanSuccess       = "qr_scan_success"
	EventQRScanFail          = "qr_scan_fail"
	EventARStarted           = "ar_started"
	EventARFailed            = "ar_failed"
	EventQuestViewed         = "quest_viewed"
	EventQuestStarted        = "quest_started"
	EventQuestChoice         = "quest_choice"
	EventQuestCompleted      = "quest_completed"
	EventHelpOpened          = "help_opened"
	EventHelpResourceClicked = "help_resource_click"
	EventReportSubmitted     = "report_submitted"
)

func (t *Tracker) AppStarted(ctx context.Context) Outcome {
	return t.Track(ctx, EventAppStarted, nil)
}

func (t *Tracker) LandingViewed(ctx context.Context) Outcome {
	return t.Track(ctx, EventLandingViewed, nil)
}

func (t *Tracker) LibraryOpened(ctx context.Context) Outcome {
	return t.Track(ctx, EventLibraryOpened, nil)
}

func (t *Tracker) QRSuccess(ctx context.Context, questID string) Outcome {
	return t.Track(ctx, EventQRScanSuccess, map[string]any{"questId": questID})
}

// QRFail records a failed scan. An empty reason leaves the error property out.
func (t *Tracker) QRFail(ctx context.Context, reason string) Outcome {
	props := map[string]any{}
	if reason != "" {
		props["error"] = reason
	}
	return t.Track(ctx, EventQRScanFail, props)
}

func (t *Tracker) ARStarted(ctx context.Context, questID string) Outcome {
	return t.Track(ctx, EventARStarted, map[string]any{"questId": questID})
}

func (t *Tracker) ARFailed(ctx context.Context, questID, reason string) Outcome {
	return t.Track(ctx, EventARFailed, map[string]any{"questId": questID, "error": reason})
}

func (t *Tracker) QuestViewed(ctx context.Context, questID string) Outcome {
	return t.Track(ctx, EventQuestViewed, map[string]any{"questId": questID})
}

func (t *Tracker) QuestStarted(ctx context.Context, questID string) Outcome {
	return t.Track(ctx, EventQuestStarted, map[string]any{"questId": questID})
}

func (t *Tracker) QuestChoice(ctx context.Context, questID, sceneID, choiceType, text string) Outcome {
	return t.Track(ctx, EventQuestChoice, map[string]any{
		"questId":    questID,
		"sceneId":    sceneID,
		"choiceType": choiceType,
		"text":       text,
	})
}

func (t *Tracker) QuestCompleted(ctx context.Context, questID string, xp int, badge string) Outcome {
	return t.Track(ctx, EventQuestCompleted, map[string]any{
		"questId": questID,
		"xp":      xp,
		"badge":   badge,
	})
}

func (t *Tracker) HelpOpened(ctx context.Context, country string) Outcome {
	return t.Track(ctx, EventHelpOpened, map[string]any{"country": country})
}

func (t *Tracker) HelpResourceClicked(ctx context.Context, country, resourceName, contactType string) Outcome {
	return t.Track(ctx, EventHelpResourceClicked, map[string]any{
		"country":      country,
		"resourceName": resourceName,
		"contactType":  contactType,
	})
}

func (t *Tracker) ReportSubmitted(ctx context.Context, category string, anonymous bool) Outcome {
	return t.Track(ctx, EventReportSubmitted, map[string]any{
		"category":  category,
		"anonymous": anonymous,
	})
}

// ErrUnknownEvent is returned by TrackCatalog for names outside the catalog.
var ErrUnknownEvent = errors.New("unknown catalog event")

// CatalogArgs carries the arguments of any catalog helper. Fields a helper
// does not take are ignored.
type CatalogArgs struct {
	QuestID      string `json:"questId"`
	Error        string `json:"error"`
	SceneID      string `json:"sceneId"`
	ChoiceType   string `json:"choiceType"`
	Text         string `json:"text"`
	XP           int    `json:"xp"`
	Badge        string `json:"badge"`
	Country      string `json:"country"`
	ResourceName string `json:"resourceName"`
	ContactType  string `json:"contactType"`
	Category     string `json:"category"`
	Anonymous    bool   `json:"anonymous"`
}

// TrackCatalog records the catalog event called name with the helper's
// property mapping.
func (t *Tracker) TrackCatalog(ctx context.Context, name string, a CatalogArgs) (Outcome, error) {
	switch name {
	case EventAppStarted:
		return t.AppStarted(ctx), nil
	case EventLandingViewed:
		return t.LandingViewed(ctx), nil
	case EventLibraryOpened:
		return t.LibraryOpened(ctx), nil
	case EventQRScanSuccess:
		return t.QRSuccess(ctx, a.QuestID), nil
	case EventQRScanFail:
		return t.QRFail(ctx, a.Error), nil
	case EventARStarted:
		return t.ARStarted(ctx, a.QuestID), nil
	case EventARFailed:
		return t.ARFailed(ctx, a.QuestID, a.Error), nil
	case EventQuestViewed:
		return t.QuestViewed(ctx, a.QuestID), nil
	case EventQuestStarted:
		return t.QuestStarted(ctx, a.QuestID), nil
	case EventQuestChoice:
		return t.QuestChoice(ctx, a.QuestID, a.SceneID, a.ChoiceType, a.Text), nil
	case EventQuestCompleted:
		return t.QuestCompleted(ctx, a.QuestID, a.XP, a.Badge), nil
	case EventHelpOpened:
		return t.HelpOpened(ctx, a.Country), nil
	case EventHelpResourceClicked:
		return t.HelpResourceClicked(ctx, a.Country, a.ResourceName, a.ContactType), nil
	case EventReportSubmitted:
		return t.ReportSubmitted(ctx, a.Category, a.Anonymous), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
