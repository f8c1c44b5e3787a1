// Package capxml decodes CAP 1.2 alert documents.
package capxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"golang.org/x/net/html/charset"
)

type capAlert struct {
	XMLName    xml.Name  `xml:"alert"`
	Identifier string    `xml:"identifier"`
	Sender     string    `xml:"sender"`
	Sent       string    `xml:"sent"`
	Status     string    `xml:"status"`
	MsgType    string    `xml:"msgType"`
	Scope      string    `xml:"scope"`
	Infos      []capInfo `xml:"info"`
}

type capInfo struct {
	Categories   []string       `xml:"category"`
	Event        string         `xml:"event"`
	ResponseType string         `xml:"responseType"`
	Urgency      string         `xml:"urgency"`
	Severity     string         `xml:"severity"`
	Certainty    string         `xml:"certainty"`
	Onset        string         `xml:"onset"`
	Expires      string         `xml:"expires"`
	SenderName   string         `xml:"senderName"`
	Headline     string         `xml:"headline"`
	Description  string         `xml:"description"`
	Instruction  string         `xml:"instruction"`
	Parameters   []capParameter `xml:"parameter"`
	Areas        []capArea      `xml:"area"`
}

type capParameter struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

type capArea struct {
	AreaDesc string   `xml:"areaDesc"`
	Polygons []string `xml:"polygon"`
	Circles  []string `xml:"circle"`
}

// Parse decodes one CAP document. Only the first <info> block is kept.
// Malformed polygons fail the whole alert; malformed circles are logged and
// skipped. source names the document in returned errors.
func Parse(source string, data []byte, logger *slog.Logger) (domain.Alert, error) {
	var doc capAlert
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&doc); err != nil {
		return domain.Alert{}, &domain.ParseError{Source: source, Err: err}
	}

	alert, err := convert(doc, logger)
	if err != nil {
		return domain.Alert{}, &domain.ParseError{Source: source, Err: err}
	}

	logger.Debug("parsed cap",
		"guid", alert.GUID,
		"headline", alert.Info.Headline,
		"areas", alert.AreaNames(),
	)
	return alert, nil
}

func convert(doc capAlert, logger *slog.Logger) (domain.Alert, error) {
	guid := strings.TrimSpace(doc.Identifier)
	if guid == "" {
		return domain.Alert{}, errors.New("missing identifier")
	}
	sent, err := parseTime("sent", doc.Sent)
	if err != nil {
		return domain.Alert{}, err
	}
	if len(doc.Infos) == 0 {
		return domain.Alert{}, errors.New("missing info block")
	}
	info, err := convertInfo(guid, doc.Infos[0], logger)
	if err != nil {
		return domain.Alert{}, err
	}

	return domain.Alert{
		GUID:     guid,
		Sender:   strings.TrimSpace(doc.Sender),
		DateSent: sent,
		Status:   strings.TrimSpace(doc.Status),
		Scope:    strings.TrimSpace(doc.Scope),
		MsgType:  strings.TrimSpace(doc.MsgType),
		Info:     info,
	}, nil
}

func convertInfo(guid string, in capInfo, logger *slog.Logger) (domain.AlertInfo, error) {
	if strings.TrimSpace(in.Severity) == "" {
		return domain.AlertInfo{}, errors.New("missing severity")
	}
	severity, err := domain.ParseSeverity(in.Severity)
	if err != nil {
		return domain.AlertInfo{}, err
	}
	onset, err := parseTime("onset", in.Onset)
	if err != nil {
		return domain.AlertInfo{}, err
	}
	expires, err := parseTime("expires", in.Expires)
	if err != nil {
		return domain.AlertInfo{}, err
	}

	info := domain.AlertInfo{
		Event:        strings.TrimSpace(in.Event),
		Urgency:      strings.TrimSpace(in.Urgency),
		Severity:     severity,
		Certainty:    strings.TrimSpace(in.Certainty),
		Onset:        onset,
		Expires:      expires,
		Headline:     strings.TrimSpace(in.Headline),
		Description:  strings.TrimSpace(in.Description),
		Instruction:  strings.TrimSpace(in.Instruction),
		ResponseType: strings.TrimSpace(in.ResponseType),
		SenderName:   strings.TrimSpace(in.SenderName),
	}
	if len(in.Categories) > 0 {
		info.Category = strings.TrimSpace(in.Categories[0])
	}
	if len(in.Parameters) > 0 {
		info.Parameters = make(map[string]string, len(in.Parameters))
		for _, p := range in.Parameters {
			info.Parameters[strings.TrimSpace(p.ValueName)] = strings.TrimSpace(p.Value)
		}
	}

	for _, a := range in.Areas {
		area := domain.Area{Desc: strings.TrimSpace(a.AreaDesc)}
		for _, text := range a.Polygons {
			p, err := domain.ParsePolygon(text)
			if err != nil {
				return domain.AlertInfo{}, fmt.Errorf("area %q: %w", area.Desc, err)
			}
			area.Polygons = append(area.Polygons, p)
		}
		for _, circle := range a.Circles {
			p, err := domain.CircleToPolygon(circle)
			if err != nil {
				logger.Warn("failed to convert circle to polygon",
					"guid", guid,
					"circle", circle,
					"error", err,
				)
				continue
			}
			area.Polygons = append(area.Polygons, p)
		}
		info.Areas = append(info.Areas, area)
	}
	return info, nil
}

func parseTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("missing %s", field)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return t.UTC(), nil
}
