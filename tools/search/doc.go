// Package search implements the content-discovery tools: web, GitHub,
// Google Books, YouTube, Reddit and arXiv search, plus readable page fetch.
//
// Every search tool takes a query and max_results (1-10, default 5) and
// returns {success, results, total}. Transport and HTTP status failures come
// back as errors, which the executor turns into failed tool results.
package search
