// Package testdb locates the database used by integration tests and runs
// test statements inside transactions that are always rolled back.
package testdb
