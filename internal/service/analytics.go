package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/model"
	"github.com/shuvam-mohapatra/URL-Shortner/internal/repository"
)

// recentWindow 单链接统计中 clicksByDate 只统计最近 7 天
const recentWindow = 7 * 24 * time.Hour

const dateLayout = "2006-01-02"

// ==================== 统计查询 ====================

// LinkAnalytics 单个短链接的统计
func (s *Service) LinkAnalytics(ctx context.Context, code string) (resp *model.LinkAnalytics, err error) {
	ctx, span := s.tracer.Start(ctx, "analytics.Link", trace.WithAttributes(attribute.String("shortener.code", code)))
	defer func() { endSpan(span, err) }()

	link, err := s.store.GetShortLinkWithVisits(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("查询短链接失败: %w", err)
	}

	return summarizeLink(link.Analytics, s.now()), nil
}

// TopicAnalytics 某个 topic 下所有短链接的统计
func (s *Service) TopicAnalytics(ctx context.Context, topic string) (resp *model.TopicAnalytics, err error) {
	ctx, span := s.tracer.Start(ctx, "analytics.Topic", trace.WithAttributes(attribute.String("shortener.topic", topic)))
	defer func() { endSpan(span, err) }()

	links, err := s.store.ListShortLinksByTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("查询 topic 失败: %w", err)
	}
	if len(links) == 0 {
		return nil, ErrTopicNotFound
	}

	return summarizeTopic(links), nil
}

// OverallAnalytics 用户名下所有短链接的统计
func (s *Service) OverallAnalytics(ctx context.Context, userID uuid.UUID) (resp *model.OverallAnalytics, err error) {
	ctx, span := s.tracer.Start(ctx, "analytics.Overall")
	defer func() { endSpan(span, err) }()

	links, err := s.store.ListShortLinksByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询用户短链接失败: %w", err)
	}
	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	return summarizeOwner(links), nil
}

// ==================== 聚合 ====================

// ipSet 去重后的 IP 集合
type ipSet map[string]struct{}

func (s ipSet) add(ip string) { s[ip] = struct{}{} }

// bucket 某个分组下的点击数和去重 IP
type bucket struct {
	clicks int
	ips    ipSet
}

// groups 按 key 分组的累加器，遍历顺序为 key 第一次出现的顺序
type groups struct {
	keys    []string
	buckets map[string]*bucket
}

func newGroups() *groups {
	return &groups{buckets: make(map[string]*bucket)}
}

func (g *groups) add(key, ip string) {
	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{ips: make(ipSet)}
		g.buckets[key] = b
		g.keys = append(g.keys, key)
	}
	b.clicks++
	b.ips.add(ip)
}

func (g *groups) dates() []model.DateClicks {
	out := make([]model.DateClicks, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, model.DateClicks{Date: k, Clicks: g.buckets[k].clicks})
	}
	return out
}

func (g *groups) osStats() []model.OSStats {
	out := make([]model.OSStats, 0, len(g.keys))
	for _, k := range g.keys {
		b := g.buckets[k]
		out = append(out, model.OSStats{OSName: k, UniqueClicks: b.clicks, UniqueUsers: len(b.ips)})
	}
	return out
}

func (g *groups) deviceStats() []model.DeviceStats {
	out := make([]model.DeviceStats, 0, len(g.keys))
	for _, k := range g.keys {
		b := g.buckets[k]
		out = append(out, model.DeviceStats{DeviceName: k, UniqueClicks: b.clicks, UniqueUsers: len(b.ips)})
	}
	return out
}

func visitDate(v model.Visit) string {
	return v.Timestamp.UTC().Format(dateLayout)
}

// summarizeLink 单链接统计
// clicksByDate 只包含 now-7d 之后（含）的访问；osType/deviceType 覆盖全部访问
func summarizeLink(visits []model.Visit, now time.Time) *model.LinkAnalytics {
	since := now.Add(-recentWindow)
	users := make(ipSet)
	byDate, byOS, byDevice := newGroups(), newGroups(), newGroups()

	for _, v := range visits {
		users.add(v.IPAddress)
		if !v.Timestamp.Before(since) {
			byDate.add(visitDate(v), v.IPAddress)
		}
		byOS.add(v.OSType, v.IPAddress)
		byDevice.add(v.DeviceType, v.IPAddress)
	}

	return &model.LinkAnalytics{
		TotalClicks:  len(visits),
		UniqueUsers:  len(users),
		ClicksByDate: byDate.dates(),
		OSType:       byOS.osStats(),
		DeviceType:   byDevice.deviceStats(),
	}
}

// summarizeTopic topic 统计，clicksByDate 为全部历史
func summarizeTopic(links []model.ShortLink) *model.TopicAnalytics {
	resp := &model.TopicAnalytics{URLs: make([]model.TopicURLStats, 0, len(links))}
	users := make(ipSet)
	byDate := newGroups()

	for _, link := range links {
		linkUsers := make(ipSet)
		for _, v := range link.Analytics {
			users.add(v.IPAddress)
			linkUsers.add(v.IPAddress)
			byDate.add(visitDate(v), v.IPAddress)
		}
		resp.TotalClicks += len(link.Analytics)
		resp.URLs = append(resp.URLs, model.TopicURLStats{
			ShortURL:    link.ShortURL,
			TotalClicks: len(link.Analytics),
			UniqueUsers: len(linkUsers),
		})
	}

	resp.UniqueUsers = len(users)
	resp.ClicksByDate = byDate.dates()
	return resp
}

// summarizeOwner 用户总体统计，clicksByDate 为全部历史
func summarizeOwner(links []model.ShortLink) *model.OverallAnalytics {
	resp := &model.OverallAnalytics{TotalURLs: len(links)}
	users := make(ipSet)
	byDate, byOS, byDevice := newGroups(), newGroups(), newGroups()

	for _, link := range links {
		for _, v := range link.Analytics {
			users.add(v.IPAddress)
			byDate.add(visitDate(v), v.IPAddress)
			byOS.add(v.OSType, v.IPAddress)
			byDevice.add(v.DeviceType, v.IPAddress)
		}
		resp.TotalClicks += len(link.Analytics)
	}

	resp.UniqueUsers = len(users)
	resp.ClicksByDate = byDate.dates()
	resp.OSType = byOS.osStats()
	resp.DeviceType = byDevice.deviceStats()
	return resp
}
