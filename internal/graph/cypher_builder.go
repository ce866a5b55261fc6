package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// Labels and relationship types cannot be bound as parameters, so they are
// validated and interpolated. Every value travels as a parameter.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
// Only allows alphanumeric characters and underscores (prevents injection)
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// BuildUpsertNodes returns the UNWIND merge for one label. Parameter $rows
// holds maps with keys id and props.
func BuildUpsertNodes(label NodeKind) (string, error) {
	if !isValidIdentifier(string(label)) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	return fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:%s {id: row.id})
SET n += row.props
RETURN count(n) AS written`, label), nil
}

// BuildUpsertEdges returns the UNWIND merge for one relationship group.
// Parameter $rows holds maps with keys from, to and props. Rows whose
// endpoints do not exist produce no match and are skipped by the store.
func BuildUpsertEdges(typ EdgeKind, fromLabel, toLabel NodeKind) (string, error) {
	for _, id := range []string{string(typ), string(fromLabel), string(toLabel)} {
		if !isValidIdentifier(id) {
			return "", fmt.Errorf("invalid identifier in edge query: %q", id)
		}
	}
	return fmt.Sprintf(`UNWIND $rows AS row
MATCH (a:%s {id: row.from})
MATCH (b:%s {id: row.to})
MERGE (a)-[r:%s]->(b)
SET r += row.props
RETURN count(r) AS written`, fromLabel, toLabel, typ), nil
}

// BuildDeleteNodes returns the detach delete for retired nodes. Parameter
// $ids holds the node ids.
func BuildDeleteNodes(label NodeKind) (string, error) {
	if !isValidIdentifier(string(label)) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	return fmt.Sprintf(`UNWIND $ids AS id
MATCH (n:%s {id: id})
DETACH DELETE n`, label), nil
}

// BuildUniqueConstraint returns the id uniqueness constraint for a label.
// The constraint also backs the MERGE lookups with an index.
func BuildUniqueConstraint(label NodeKind) (string, error) {
	if !isValidIdentifier(string(label)) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	name := "repograph_" + strings.ToLower(string(label)) + "_id"
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", name, label), nil
}

// BindingQuery reads the url of the repository the store already holds
const BindingQuery = `MATCH (n:Repository) RETURN n.url AS url ORDER BY n.id LIMIT 1`

// BuildCountNodes counts the nodes of one label
func BuildCountNodes(label NodeKind) (string, error) {
	if !isValidIdentifier(string(label)) {
		return "", fmt.Errorf("invalid label: %q", label)
	}
	return fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label), nil
}
