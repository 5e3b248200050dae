package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/analytics"
	"github.com/kalambet/salesdash/internal/forecast"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service        *analytics.Service
	Version        string
	DefaultHorizon int
}

// NewMCPServer creates an MCP server exposing the sales analytics as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.DefaultHorizon <= 0 {
		deps.DefaultHorizon = 30
	}
	s := server.NewMCPServer(
		"salesdash",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("salesdash: sales KPIs, breakdowns, top products and forecasts over the loaded order history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("sales_summary",
			append([]mcp.ToolOption{
				mcp.WithDescription("Total sales, order count, average order value and unique customers, compared with the previous period."),
			}, filterOptions()...)...,
		),
		mcpSalesSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("sales_breakdown",
			append([]mcp.ToolOption{
				mcp.WithDescription("Sales split by category, region or customer segment, with share of total."),
				mcp.WithString("dimension", mcp.Description("category, region or segment"), mcp.Required(),
					mcp.Enum(string(aggregate.DimCategory), string(aggregate.DimRegion), string(aggregate.DimSegment))),
			}, filterOptions()...)...,
		),
		mcpSalesBreakdown(deps),
	)

	s.AddTool(
		mcp.NewTool("top_products",
			append([]mcp.ToolOption{
				mcp.WithDescription("Best-selling products ranked by sales."),
				mcp.WithNumber("limit", mcp.Description("Maximum number of products (default 10)")),
			}, filterOptions()...)...,
		),
		mcpTopProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("forecast_sales",
			append([]mcp.ToolOption{
				mcp.WithDescription("Forecast daily sales with confidence bands, growth rate and peaks."),
				mcp.WithNumber("forecast_periods", mcp.Description("Days to forecast (default 30)")),
				mcp.WithString("method", mcp.Description("Forecast method: decomposition, holtwinters or linear. prophet and sarima are accepted as aliases.")),
			}, filterOptions()...)...,
		),
		mcpForecastSales(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_seasonality",
			append([]mcp.ToolOption{
				mcp.WithDescription("Weekly, monthly and quarterly seasonal effects in daily sales."),
			}, filterOptions()...)...,
		),
		mcpAnalyzeSeasonality(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sales://dashboard",
			"Sales Dashboard",
			mcp.WithResourceDescription("Dashboard for the default date range as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDashboard(deps),
	)

	return s
}

func filterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("date_range", mcp.Description("last_7_days, last_30_days, last_90_days, last_year, year_to_date, all_time or YYYY-MM-DD:YYYY-MM-DD (custom: prefix optional)")),
		mcp.WithString("start_date", mcp.Description("Start date (YYYY-MM-DD); overrides date_range")),
		mcp.WithString("end_date", mcp.Description("End date (YYYY-MM-DD); overrides date_range")),
		mcp.WithString("category", mcp.Description("Only this product category")),
		mcp.WithString("region", mcp.Description("Only this region")),
		mcp.WithString("segment", mcp.Description("Only this customer segment")),
	}
}

func mcpQuery(req mcp.CallToolRequest) analytics.Query {
	return analytics.Query{
		DateRange: req.GetString("date_range", ""),
		StartDate: req.GetString("start_date", ""),
		EndDate:   req.GetString("end_date", ""),
		Category:  req.GetString("category", ""),
		Region:    req.GetString("region", ""),
		Segment:   req.GetString("segment", ""),
	}
}

func mcpSalesSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum, err := deps.Service.SalesSummary(ctx, mcpQuery(req))
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(sum), nil
	}
}

func mcpSalesBreakdown(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("dimension")
		if err != nil {
			return mcpError("dimension is required"), nil
		}
		dim, ok := aggregate.ParseDimension(raw)
		if !ok {
			return mcpError(fmt.Sprintf("unknown dimension %q", raw)), nil
		}

		q := mcpQuery(req)
		var rows any
		switch dim {
		case aggregate.DimCategory:
			rows, err = deps.Service.SalesByCategory(ctx, q)
		case aggregate.DimRegion:
			rows, err = deps.Service.SalesByRegion(ctx, q)
		default:
			rows, err = deps.Service.SalesBySegment(ctx, q)
		}
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(rows), nil
	}
}

func mcpTopProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rows, err := deps.Service.TopProducts(ctx, mcpQuery(req), req.GetInt("limit", 0))
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(rows), nil
	}
}

func mcpForecastSales(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		horizon := req.GetInt("forecast_periods", deps.DefaultHorizon)
		res, err := deps.Service.ForecastSales(ctx, mcpQuery(req), horizon, req.GetString("method", ""))
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(res), nil
	}
}

func mcpAnalyzeSeasonality(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := deps.Service.AnalyzeSeasonality(ctx, mcpQuery(req))
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(p), nil
	}
}

func mcpResourceDashboard(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		d, err := deps.Service.Dashboard(ctx, analytics.Query{})
		if err != nil {
			return nil, fmt.Errorf("failed to build dashboard: %w", err)
		}

		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal dashboard: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpFailure reports user errors verbatim and hides everything else.
func mcpFailure(err error) *mcp.CallToolResult {
	if analytics.IsValidation(err) || errors.Is(err, forecast.ErrInsufficientData) {
		return mcpError(err.Error())
	}
	return mcpError(genericErrorMessage)
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
