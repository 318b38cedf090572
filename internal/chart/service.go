package chart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"avwap/internal/analysis/profile"
	"avwap/internal/logger"
	"avwap/internal/market"
)

// Renderer 把编排结果输出为图表文件。
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

type RenderRequest struct {
	Title  string
	Output string
	Result Result
}

// ProfileRenderer 输出成交量/价格分布图。
type ProfileRenderer interface {
	RenderProfile(ctx context.Context, req ProfileRequest) error
}

type ProfileRequest struct {
	Title   string
	Output  string
	Profile profile.Profile
}

// Job 描述一次绘图请求。
type Job struct {
	Symbol   string
	Period   string
	Interval string
	Note     string
	Title    string
	Output   string
	Options  Options
}

type Service struct {
	source   market.Source
	renderer Renderer
	profiles ProfileRenderer
	now      func() time.Time
}

type ServiceParams struct {
	Source          market.Source
	Renderer        Renderer
	ProfileRenderer ProfileRenderer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		source:   p.Source,
		renderer: p.Renderer,
		profiles: p.ProfileRenderer,
		now:      time.Now,
	}
}

var ErrNoRenderer = errors.New("renderer not configured")

// Prepare 拉取数据并执行编排，不渲染。
func (s *Service) Prepare(ctx context.Context, job Job) (Result, error) {
	series, err := s.Fetch(ctx, job)
	if err != nil {
		return Result{}, err
	}
	return s.build(job, series)
}

func (s *Service) build(job Job, series *market.Series) (Result, error) {
	res, err := Build(series, job.Options)
	if err != nil {
		return Result{}, err
	}
	logger.Debugf("[chart] %s %s anchors=%d curves=%d threshold=%s bars=%d",
		job.Symbol, job.Interval, len(res.Anchors), len(res.Curves), res.Threshold.Format(time.DateOnly), res.Series.Len())
	return res, nil
}

// Draw 拉取数据、编排并渲染。
func (s *Service) Draw(ctx context.Context, job Job) (Result, error) {
	if s.renderer == nil {
		return Result{}, ErrNoRenderer
	}
	series, err := s.Fetch(ctx, job)
	if err != nil {
		return Result{}, err
	}
	return s.DrawSeries(ctx, job, series)
}

// DrawSeries 对已拉取的序列编排并渲染，同一序列可按不同锚点多次绘制。
func (s *Service) DrawSeries(ctx context.Context, job Job, series *market.Series) (Result, error) {
	if s.renderer == nil {
		return Result{}, ErrNoRenderer
	}
	start := s.now()
	res, err := s.build(job, withJobMeta(series, job))
	if err != nil {
		return Result{}, err
	}
	req := RenderRequest{Title: jobTitle(job), Output: job.Output, Result: res}
	if err := s.renderer.Render(ctx, req); err != nil {
		return Result{}, fmt.Errorf("render %s: %w", job.Symbol, err)
	}
	logger.Infof("[chart] %s %s 已绘制 -> %s (%s)", job.Symbol, job.Interval, job.Output, s.now().Sub(start).Round(time.Millisecond))
	return res, nil
}

// Profile 计算成交量/价格分布，不渲染。
func (s *Service) Profile(ctx context.Context, job Job) (profile.Profile, error) {
	series, err := s.Fetch(ctx, job)
	if err != nil {
		return profile.Profile{}, err
	}
	p, err := profile.Build(series, job.Options.ProfileBins, job.Options.ValueRegionFraction)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", job.Symbol, err)
	}
	return p, nil
}

// DrawProfile 计算分布并渲染。
func (s *Service) DrawProfile(ctx context.Context, job Job) (profile.Profile, error) {
	if s.profiles == nil {
		return profile.Profile{}, ErrNoRenderer
	}
	p, err := s.Profile(ctx, job)
	if err != nil {
		return profile.Profile{}, err
	}
	req := ProfileRequest{Title: jobTitle(job), Output: job.Output, Profile: p}
	if err := s.profiles.RenderProfile(ctx, req); err != nil {
		return profile.Profile{}, fmt.Errorf("render profile %s: %w", job.Symbol, err)
	}
	logger.Infof("[chart] %s profile value region=[%d,%d] -> %s", job.Symbol, p.ValueRegion.Low, p.ValueRegion.High, job.Output)
	return p, nil
}

// Fetch 从数据源拉取 job 对应的序列并补齐元信息。
func (s *Service) Fetch(ctx context.Context, job Job) (*market.Series, error) {
	if s.source == nil {
		return nil, fmt.Errorf("chart: source not configured")
	}
	series, err := s.source.Fetch(ctx, job.Symbol, job.Period, job.Interval)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", job.Symbol, err)
	}
	if series.Len() == 0 {
		return nil, market.Unavailable("chart", job.Symbol, job.Period, job.Interval)
	}
	return withJobMeta(series, job), nil
}

func withJobMeta(series *market.Series, job Job) *market.Series {
	meta := series.Meta
	if meta.Symbol == "" {
		meta.Symbol = job.Symbol
	}
	if meta.Interval == "" {
		meta.Interval = job.Interval
	}
	if meta.Period == "" {
		meta.Period = job.Period
	}
	if job.Note != "" {
		meta.Note = job.Note
	}
	return series.WithMeta(meta)
}

func jobTitle(job Job) string {
	if t := strings.TrimSpace(job.Title); t != "" {
		return t
	}
	return fmt.Sprintf("%s %s", job.Symbol, job.Interval)
}
