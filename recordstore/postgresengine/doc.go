// Package postgresengine provides a PostgreSQL implementation of the fluent
// record-access engine.
//
// The engine binds to one table and performs create/read/update/delete
// operations described by recordstore.QuerySpec values. Every operation is
// routed through the lifecycle hook chains (pre/post x find/insert/update/
// delete) and, for writes, through the validation and field-protection gate:
// the candidate record is validated against the declared rules, the relevant
// timestamp is auto-stamped, and the field authorizer strips the primary key,
// protected fields, and fields unknown to the introspected table schema
// before the statement is issued.
//
// Three connection kinds are supported through internal adapters: pgxpool,
// database/sql, and sqlx. Usage:
//
//	engine, err := postgresengine.NewEngineFromPGXPool(pool, "users",
//		postgresengine.WithTablePrefix("app_"),
//		postgresengine.WithRules(recordstore.RuleSet{"email": "required,email"}),
//		postgresengine.WithValidator(playgroundvalidator.New()),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	spec, _ := recordstore.BuildQuerySpec().
//		Where("status", 2).
//		OrderBy("created_on", "DESC").
//		Limit(10, 0).
//		Finalize()
//
//	records, err := engine.FindAll(ctx, spec)
package postgresengine
