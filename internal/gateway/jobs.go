package gateway

import (
	"context"

	"signal-radar/internal/normalize"
)

const (
	KindProfilePosts = "profile_posts"
	KindReactions    = "reactions"
	KindComments     = "comments"
	KindProfile      = "profile"
	KindCompany      = "company"
)

func withDefaultProviders(jobs JobsConfig) JobsConfig {
	if jobs.ProfilePosts.Provider == "" {
		jobs.ProfilePosts.Provider = normalize.ProviderProfileFeed
	}
	if jobs.Reactions.Provider == "" {
		jobs.Reactions.Provider = normalize.ProviderDefault
	}
	if jobs.Comments.Provider == "" {
		jobs.Comments.Provider = normalize.ProviderDefault
	}
	if jobs.Profile.Provider == "" {
		jobs.Profile.Provider = normalize.ProviderDefault
	}
	if jobs.Company.Provider == "" {
		jobs.Company.Provider = normalize.ProviderDefault
	}
	return jobs
}

// ScanProfiles 一次批量调用抓取全部档案的最新帖子。
func (c *Client) ScanProfiles(ctx context.Context, profileURLs []string, maxPosts int) (ResultSet, error) {
	if len(profileURLs) == 0 {
		return ResultSet{Provider: c.jobs.ProfilePosts.Provider}, nil
	}
	spec := JobSpec{
		Kind:  KindProfilePosts,
		Actor: c.jobs.ProfilePosts.Actor,
		Input: map[string]any{"targetUrls": profileURLs, "maxPosts": maxPosts},
	}
	return c.resultSet(ctx, spec, c.jobs.ProfilePosts.Provider)
}

// SupportsCombinedReactions 报告 provider 能否一次抓取多个反应类别。
func (c *Client) SupportsCombinedReactions() bool {
	return c.combinedReactions
}

// ScrapeReactions 抓取帖子反应列表，reactionTypes 为空时抓取全部类别。
func (c *Client) ScrapeReactions(ctx context.Context, postURL string, reactionTypes []string, limit int) (ResultSet, error) {
	input := map[string]any{"postUrl": postURL, "limit": limit}
	if len(reactionTypes) > 0 {
		input["reactionTypes"] = reactionTypes
	}
	spec := JobSpec{Kind: KindReactions, Actor: c.jobs.Reactions.Actor, Input: input}
	return c.resultSet(ctx, spec, c.jobs.Reactions.Provider)
}

// ScrapeComments 抓取帖子评论。
func (c *Client) ScrapeComments(ctx context.Context, postURL string, limit int) (ResultSet, error) {
	spec := JobSpec{
		Kind:  KindComments,
		Actor: c.jobs.Comments.Actor,
		Input: map[string]any{"postUrl": postURL, "limit": limit},
	}
	return c.resultSet(ctx, spec, c.jobs.Comments.Provider)
}

// EnrichProfile 补全单个档案。
func (c *Client) EnrichProfile(ctx context.Context, profileURL string) (ResultSet, error) {
	spec := JobSpec{
		Kind:  KindProfile,
		Actor: c.jobs.Profile.Actor,
		Input: map[string]any{"profileUrls": []string{profileURL}},
	}
	return c.resultSet(ctx, spec, c.jobs.Profile.Provider)
}

// EnrichCompany 补全单个公司。
func (c *Client) EnrichCompany(ctx context.Context, companyURL string) (ResultSet, error) {
	spec := JobSpec{
		Kind:  KindCompany,
		Actor: c.jobs.Company.Actor,
		Input: map[string]any{"companyUrls": []string{companyURL}},
	}
	return c.resultSet(ctx, spec, c.jobs.Company.Provider)
}

func (c *Client) resultSet(ctx context.Context, spec JobSpec, provider string) (ResultSet, error) {
	items, err := c.runWithRetry(ctx, spec)
	if err != nil {
		return ResultSet{Provider: provider}, err
	}
	return ResultSet{Provider: provider, Items: items}, nil
}
