// Command sqlagent runs the NL to SQL pipeline and its deterministic checks
// from the command line.
//
// Usage:
//
//	sqlagent generate "top 5 customers by revenue"
//	sqlagent sanitize --dialect sqlserver "SELECT * FROM t LIMIT 5"
//	sqlagent classify --question "..." --sql "..." "assertion one" "assertion two"
//	sqlagent cert verify --cert cert.json --sql-file query.sql
//	sqlagent ping
package main

func main() {
	Execute()
}
