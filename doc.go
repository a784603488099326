// Package authcore is the session-security core behind a credential
// verifier: bearer token issuance, verification, rotation, and revocation;
// per-user session registries; IP rate limiting; progressive-delay
// brute-force mitigation; and a bounded worker pool for offloading
// cryptographic verification.
//
// The package deliberately stops at the security boundary. It does not
// verify passwords, route HTTP, or render anything: a collaborator
// establishes a principal (user id) and hands it to
// [Engine.GenerateTokenResponse]; on every subsequent request the
// collaborator extracts the bearer token and asks the engine to verify it.
// All cross-process state lives in a shared Redis store behind a
// configurable key prefix, so any number of processes can serve one
// deployment.
//
// Build an [Engine] with the fluent [Builder]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
//		Build()
package authcore
