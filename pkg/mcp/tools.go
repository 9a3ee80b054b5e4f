package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dravya-labs/dravya/pkg/enrich"
	"github.com/dravya-labs/dravya/pkg/identify"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type identifyArgs struct {
	models.SensorInput
	IncludeImage bool `json:"include_image"`
}

type searchArgs struct {
	Name         string `json:"name"`
	IncludeImage bool   `json:"include_image"`
}

type labelArgs struct {
	Dravya string `json:"dravya"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"dravya_identify":     handleIdentify,
	"dravya_search":       handleSearch,
	"dravya_research":     handleResearch,
	"dravya_describe":     handleDescribe,
	"dravya_illustrate":   handleIllustrate,
	"dravya_labels":       handleLabels,
	"dravya_cache_stats":  handleCacheStats,
	"dravya_ledger_stats": handleLedgerStats,
}

func sensorProperty(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func labelSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"dravya"},
		"properties": map[string]any{
			"dravya": map[string]any{
				"type":        "string",
				"description": "Dravya label, as returned by dravya_labels",
			},
		},
	}
}

var allTools = []ToolDefinition{
	{
		Name:        "dravya_identify",
		Description: "Identify a dravya from six sensor readings and return its description, plus an image when include_image is set.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": models.FeatureColumns,
			"properties": map[string]any{
				"pH":            sensorProperty("Acidity"),
				"TDS":           sensorProperty("Total dissolved solids (ppm)"),
				"Turbidity":     sensorProperty("Turbidity (NTU)"),
				"Gas":           sensorProperty("Gas sensor reading"),
				"ColorIndex":    sensorProperty("Colour index"),
				"Temp":          sensorProperty("Temperature (C)"),
				"include_image": map[string]any{"type": "boolean", "description": "Attach the generated image"},
			},
		},
	},
	{
		Name:        "dravya_search",
		Description: "Look up a dravya by name (case-insensitive) and return its description, plus an image when include_image is set.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"name"},
			"properties": map[string]any{
				"name":          map[string]any{"type": "string", "description": "Dravya name, e.g. Tulsi"},
				"include_image": map[string]any{"type": "boolean", "description": "Attach the generated image"},
			},
		},
	},
	{
		Name:        "dravya_research",
		Description: "Ask a free-form question about a dravya. Answers are generated fresh and never cached.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"dravya", "query"},
			"properties": map[string]any{
				"dravya": map[string]any{"type": "string", "description": "Dravya label, as returned by dravya_labels"},
				"query":  map[string]any{"type": "string", "description": "The question to answer"},
			},
		},
	},
	{
		Name:        "dravya_describe",
		Description: "Return the Ayurvedic description of a dravya, generating it on a cache miss.",
		InputSchema: labelSchema(),
	},
	{
		Name:        "dravya_illustrate",
		Description: "Return an illustration of a dravya, generating it on a cache miss.",
		InputSchema: labelSchema(),
	},
	{
		Name:        "dravya_labels",
		Description: "List the dravya labels the classifier can predict.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "dravya_cache_stats",
		Description: "Show content cache entries and hit rate.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "dravya_ledger_stats",
		Description: "Show generation attempts grouped by artifact, strategy and outcome.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: BlockText, Text: text}}, IsError: true}
}

func imageBlock(img []byte) ContentBlock {
	return ContentBlock{
		Type:     BlockImage,
		Data:     base64.StdEncoding.EncodeToString(img),
		MIMEType: http.DetectContentType(img),
	}
}

func handleIdentify(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args identifyArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	resp, err := s.svc.Identify(ctx, args.SensorInput)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return errorResult(verr.Error())
		}
		return errorResult("Model prediction failed: " + err.Error())
	}

	return identifyResult(resp, args.IncludeImage)
}

func identifyResult(resp models.IdentifyResponse, includeImage bool) ToolCallResult {
	res := textResult(formatIdentify(resp))
	if includeImage && resp.ImageBase64 != nil {
		res.Content = append(res.Content, ContentBlock{
			Type:     BlockImage,
			Data:     *resp.ImageBase64,
			MIMEType: sniffBase64(*resp.ImageBase64),
		})
	}
	return res
}

func lookupError(s *Server, err error) ToolCallResult {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResult(verr.Error())
	case errors.Is(err, identify.ErrUnknownDravya):
		return errorResult(err.Error() + " (known: " + strings.Join(s.svc.Labels(), ", ") + ")")
	default:
		return errorResult(err.Error())
	}
}

func handleSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args searchArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if strings.TrimSpace(args.Name) == "" {
		return errorResult("name is required")
	}
	resp, err := s.svc.Search(ctx, args.Name)
	if err != nil {
		return lookupError(s, err)
	}
	return identifyResult(resp, args.IncludeImage)
}

func handleResearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var q models.ResearchQuery
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &q); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	resp, err := s.svc.Research(ctx, q)
	if err != nil {
		return lookupError(s, err)
	}
	return textResult(resp.Answer)
}

func sniffBase64(s string) string {
	head := s[:min(len(s), 64)]
	head = head[:len(head)/4*4]
	b, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return "application/octet-stream"
	}
	return http.DetectContentType(b)
}

func (s *Server) knownLabel(rawArgs json.RawMessage) (string, *ToolCallResult) {
	var args labelArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			r := errorResult("Invalid arguments: " + err.Error())
			return "", &r
		}
	}
	label := strings.TrimSpace(args.Dravya)
	if label == "" {
		r := errorResult("dravya is required")
		return "", &r
	}
	if !lo.Contains(s.svc.Labels(), label) {
		r := errorResult("unknown dravya: " + label + " (known: " + strings.Join(s.svc.Labels(), ", ") + ")")
		return "", &r
	}
	return label, nil
}

func handleDescribe(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	label, bad := s.knownLabel(rawArgs)
	if bad != nil {
		return *bad
	}
	text, err := s.enrich.Describe(ctx, label)
	if err != nil {
		s.log.Warn("mcp describe", zap.String("label", label), zap.Error(err))
		return textResult(enrich.Placeholder)
	}
	return textResult(text)
}

func handleIllustrate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	label, bad := s.knownLabel(rawArgs)
	if bad != nil {
		return *bad
	}
	img, err := s.enrich.Illustrate(ctx, label)
	if err != nil {
		return errorResult("Image unavailable: " + err.Error())
	}
	return ToolCallResult{Content: []ContentBlock{imageBlock(img)}}
}

func handleLabels(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatLabels(s.svc.Labels()))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.cache.Stats()))
}

func handleLedgerStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.ledger == nil {
		return textResult("Generation ledger is not configured.")
	}
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching ledger stats: " + err.Error())
	}
	return textResult(formatLedgerStats(stats))
}
