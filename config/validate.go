package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate 汇总全部问题后一次返回
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	oneOf := func(field, v string, allowed ...string) {
		check(slices.Contains(allowed, v), "unknown %s %q", field, v)
	}

	check(validPort(c.Server.HTTPPort, false), "invalid HTTP port %d", c.Server.HTTPPort)
	check(validPort(c.Server.MetricsPort, true), "invalid metrics port %d", c.Server.MetricsPort)
	check(c.Server.RateLimitRPS >= 0, "server.rate_limit_rps must not be negative")
	check(c.Server.MaxConnections >= 0, "server.max_connections must not be negative")

	w := c.Workflow
	check(w.Temperature >= 0 && w.Temperature <= 2, "workflow.temperature must be between 0 and 2")
	check(w.MaxSearchResults >= 1 && w.MaxSearchResults <= 20, "workflow.max_search_results must be between 1 and 20")
	check(w.CitationTokenBudget > 0, "workflow.citation_token_budget must be positive")
	check(w.MaxTokens >= 0, "workflow.max_tokens must not be negative")

	check(c.LLM.MaxRetries >= 0, "llm.max_retries must not be negative")
	oneOf("llm.tokenizer", c.LLM.Tokenizer, "tiktoken", "estimator")
	oneOf("search.provider", c.Search.Provider, "tavily", "none")
	oneOf("store.backend", c.Store.Backend, "memory", "database", "redis", "mongo")
	switch c.Store.Backend {
	case "database":
		check(slices.Contains([]string{"postgres", "mysql", "sqlite"}, c.Database.Driver),
			"unsupported database.driver %q", c.Database.Driver)
	case "mongo":
		check(c.Mongo.URI != "" && c.Mongo.Database != "", "mongo.uri and mongo.database are required for the mongo store")
	}
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "telemetry.sample_rate must be between 0 and 1")

	return errors.Join(errs...)
}

func validPort(p int, zeroOK bool) bool {
	if p == 0 {
		return zeroOK
	}
	return p > 0 && p <= 65535
}
