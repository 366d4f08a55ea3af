// Package storage provides backend connection management for gather.
//
// # Overview
//
// This package holds the shared backend configuration and, through the
// postgres subpackage, the concrete clients:
//
//   - PostgreSQL: the system of record for users, communities, memberships,
//     event RSVPs, sessions, and the audit trail. Required.
//   - Redis: the counter store for sliding window rate limiting. Optional;
//     when absent the rate limiter fails open.
//   - S3: the archive target for aged-out audit batches. Optional; when no
//     bucket is configured the sweeper skips archiving.
//
// # Freshness
//
// There is deliberately no caching layer in front of PostgreSQL. Capability
// tokens are computed from membership and RSVP rows at issuance time, and a
// revoked membership must stop minting grants on the next request. All reads
// go to the primary pool; read replicas would reintroduce staleness through
// replication lag.
//
// # Usage Example
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://localhost/gather"
//
//	db, err := postgres.NewDB(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
// # Related Packages
//
//   - pkg/communities: membership and RSVP queries on the PostgreSQL pool
//   - pkg/ratelimit: sliding window counters on the Redis client
//   - pkg/audit: audit trail writes and S3 archive batches
package storage
