// Package demo holds small business classes that exercise every directive
// kind. The CLI registers them in its default catalog and the harness
// scenarios drive them.
//
// Shop runs a checkout pipeline:
//
//	Checkout  chain [Reserve, Charge], async-after Confirm, catch Recover
//	Route     decision (bool) [Express, Standard]
//	Classify  decision (enum Tier) [Gold, Silver]
//	Review    dynamic chain (ir.Branch) [Audit, Flag]
//	Ship      fork [Pack, Label]
//
// Newsletter picks async overloads by collaborator:
//
//	Subscribe  async-after Welcome (Welcome_Mail binds *Mailer)
//	Broadcast  fork fail-fast [Publish, Archive]
package demo
