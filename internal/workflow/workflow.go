// Package workflow pairs a system instruction and goal template with the
// toolset it is meant to drive.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/petasbytes/toolloop/tools"
	"github.com/petasbytes/toolloop/tools/podcast"
	"github.com/petasbytes/toolloop/tools/search"
)

const (
	NameDiscovery = "discovery"
	NamePodcast   = "podcast"
)

var ErrUnknownWorkflow = errors.New("unknown workflow")

// Workflow is everything a runner needs besides the model.
type Workflow struct {
	Name   string
	System string
	Tools  []tools.Tool
	goal   func(string) string
}

// Goal renders the user's input into the goal text for a session.
func (w Workflow) Goal(input string) string {
	if w.goal == nil {
		return input
	}
	return w.goal(input)
}

// Registry registers the workflow's tools in order.
func (w Workflow) Registry() (*tools.Registry, error) {
	reg := tools.NewRegistry()
	for _, t := range w.Tools {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", w.Name, err)
		}
	}
	return reg, nil
}

const discoverySystem = `You are an expert content discovery agent. Your job is to help users find the best resources (blogs, articles, repositories, books, videos, etc.) on any topic they're interested in.

When given a topic:
1. First, reason about what types of content would be most valuable for this topic
2. Decide which tools to use based on the topic:
   - web_search: For current articles, blogs, general information
   - github_search: For technical topics where code/projects exist
   - books_search: For topics where deep reading or comprehensive guides help
   - youtube_search: For visual learning, tutorials, demonstrations
   - reddit_search: For community discussions, real user experiences
   - arxiv_search: For academic papers, research, cutting-edge developments
   - web_fetch: To read a promising result in full
3. Call the appropriate tools to gather information
4. Synthesize the results into a curated, ranked list
5. Explain your reasoning

Important:
- Use multiple tools when appropriate (e.g., web + books + youtube for learning topics)
- Don't use GitHub or arXiv for non-technical topics (e.g., parenting, relationships)
- Don't use arXiv for beginner topics (it's for advanced research)
- Reddit is good for practical experiences and troubleshooting
- YouTube is great for visual/practical learning
- Be selective - quality over quantity (max 3-4 tools per query)

After gathering information, provide a structured summary with:
1. Overview of what you found
2. Top recommendations for each category
3. Why you chose these specific resources
4. Suggested order for consuming the content`

const podcastSystem = `You are an intelligent, autonomous podcast research agent.

You have access to tools to help achieve the user's goal. Think strategically:

1. ALWAYS start by checking user preferences to understand what they value
2. Decide if you should fetch recent episodes or search for new podcasts
3. Intelligently filter episodes - don't waste time on irrelevant content
4. Choose appropriate summary styles based on:
   - Content complexity (technical topics need detailed summaries)
   - User's current context (if they mention being busy, use brief)
   - Content type (interviews vs tutorials need different approaches)
5. Only send email when you have genuinely valuable content
6. Use save_for_later for good but not urgent content

Think step-by-step. Explain your reasoning before each tool use.`

// DiscoveryGoal is the goal text for a discovery topic.
func DiscoveryGoal(topic string) string {
	return "I want to learn about: " + strings.TrimSpace(topic) + "\n\nPlease find me the best resources available."
}

// Discovery builds the content-discovery workflow over c.
func Discovery(c *search.Client) Workflow {
	return Workflow{
		Name:   NameDiscovery,
		System: discoverySystem,
		Tools:  search.Tools(c),
		goal:   DiscoveryGoal,
	}
}

// Podcast builds the podcast assistant workflow over svc. Goals pass through
// unchanged.
func Podcast(svc *podcast.Service) Workflow {
	return Workflow{
		Name:   NamePodcast,
		System: podcastSystem,
		Tools:  svc.Tools(),
	}
}

// Kit holds the tool backends workflows draw on.
type Kit struct {
	Search  *search.Client
	Podcast *podcast.Service
}

// Build returns the named workflow.
func Build(name string, k Kit) (Workflow, error) {
	switch name {
	case NameDiscovery:
		if k.Search == nil {
			return Workflow{}, fmt.Errorf("workflow %s: search client not configured", name)
		}
		return Discovery(k.Search), nil
	case NamePodcast:
		if k.Podcast == nil {
			return Workflow{}, fmt.Errorf("workflow %s: podcast service not configured", name)
		}
		return Podcast(k.Podcast), nil
	}
	return Workflow{}, fmt.Errorf("%w %q (have %s)", ErrUnknownWorkflow, name, strings.Join(Names(), ", "))
}

func Names() []string {
	n := []string{NameDiscovery, NamePodcast}
	sort.Strings(n)
	return n
}
