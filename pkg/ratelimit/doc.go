// Package ratelimit enforces named, per-action sliding window limits backed
// by a shared Redis counter store.
//
// Every throttled operation is a named Action with its own Policy (max hits
// per window) and its own key prefix in the store, so quotas never bleed
// between actions. The window slides: exactly MaxCount calls are admitted in
// any window, the next one is denied, and one slot comes back the moment the
// oldest recorded hit ages out. Denied hits are not recorded, so hammering a
// limit does not push the reset time further away.
//
// Checks go through a Registry, constructed once at startup and injected
// into handlers and middleware:
//
//	store := ratelimit.NewRedisStore(redisClient)
//	registry := ratelimit.NewRegistry(ratelimit.DefaultPolicies(), store, cfg.RateLimit.FailOpen, logger, metrics)
//
//	decision, err := registry.Check(ctx, ratelimit.ActionChatMessage, "user:"+principal.ID)
//	if err != nil {
//		// unknown action or blank identifier, treat as denied
//	}
//	if !decision.Allowed {
//		// respond 429 with decision.ResetAt
//	}
//
// Identifiers are caller-constructed, "user:{id}" for authenticated
// principals and "ip:{addr}" before authentication.
//
// The counter store is optional. With no store configured, or when the
// store errors while failOpen is set, checks return synthetic allowed
// decisions: losing Redis must not take user traffic down with it. The
// degraded state is logged once per process and stays visible through the
// gather_ratelimit_decisions_total{outcome="fail_open"} metric. Everything
// else fails closed: unknown actions, blank identifiers, and store errors
// with failOpen disabled all deny.
//
// Policy defaults live in DefaultPolicies and can be retuned per deployment
// with a YAML file loaded through LoadPolicyFile at startup.
package ratelimit
