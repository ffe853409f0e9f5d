package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

// Export formats accepted by ExportTranscript.
const (
	ExportJSON = "json"
	ExportXLSX = "xlsx"
	ExportBoth = "both"
)

// ExportFile is a rendered transcript ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TranscriptExport is the JSON export layout.
type TranscriptExport struct {
	ExportInfo TranscriptExportInfo `json:"export_info"`
	Exchanges  []models.Exchange    `json:"exchanges"`
}

type TranscriptExportInfo struct {
	ExportDate   time.Time `json:"export_date"`
	SessionID    string    `json:"session_id"`
	TotalRecords int       `json:"total_records"`
	Format       string    `json:"format"`
}

var transcriptHeaders = []string{"Timestamp", "Question", "Answer", "Sources"}

// ExportTranscript renders a session's exchanges as json, xlsx, or a zip
// holding both.
func ExportTranscript(sessionID string, exchanges []models.Exchange, format string) (*ExportFile, error) {
	base := "transcript_" + sessionID

	switch strings.ToLower(format) {
	case "", ExportJSON:
		data, err := transcriptJSON(sessionID, exchanges)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: base + ".json", ContentType: "application/json", Data: data}, nil

	case ExportXLSX, "excel":
		data, err := transcriptXLSX(exchanges)
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    base + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil

	case ExportBoth:
		jsonData, err := transcriptJSON(sessionID, exchanges)
		if err != nil {
			return nil, err
		}
		xlsxData, err := transcriptXLSX(exchanges)
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for name, data := range map[string][]byte{base + ".json": jsonData, base + ".xlsx": xlsxData} {
			w, err := zw.Create(name)
			if err != nil {
				return nil, fmt.Errorf("failed to create zip entry: %w", err)
			}
			if _, err := w.Write(data); err != nil {
				return nil, fmt.Errorf("failed to write zip entry: %w", err)
			}
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finalize zip: %w", err)
		}
		return &ExportFile{Filename: base + ".zip", ContentType: "application/zip", Data: buf.Bytes()}, nil
	}

	return nil, fmt.Errorf("unsupported export format %q", format)
}

func transcriptJSON(sessionID string, exchanges []models.Exchange) ([]byte, error) {
	data, err := json.MarshalIndent(TranscriptExport{
		ExportInfo: TranscriptExportInfo{
			ExportDate:   time.Now().UTC(),
			SessionID:    sessionID,
			TotalRecords: len(exchanges),
			Format:       ExportJSON,
		},
		Exchanges: exchanges,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func transcriptXLSX(exchanges []models.Exchange) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing Excel file", "error", err)
		}
	}()

	sheetName := "Transcript"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for i, header := range transcriptHeaders {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", 'A'+i), header)
	}

	for rowIdx, ex := range exchanges {
		row := rowIdx + 2
		answer := ex.PlainResponse
		if answer == "" {
			answer = ex.Response
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), ex.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), ex.Query)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), answer)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), sourceList(ex))
	}

	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "B", 40)
	f.SetColWidth(sheetName, "C", "C", 80)
	f.SetColWidth(sheetName, "D", "D", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func sourceList(ex models.Exchange) string {
	parts := make([]string, 0, len(ex.Sources))
	for _, s := range ex.Sources {
		parts = append(parts, fmt.Sprintf("[%d] %s", s.CitationNumber, s.Filename))
	}
	return strings.Join(parts, "; ")
}
