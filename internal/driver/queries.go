package driver

import "fmt"

// NodeLabels lists every label the analysis graph uses.
var NodeLabels = []string{"User", "Record", "Category", "Ingredient", "Condition"}

// Labels and relationship types cannot be query parameters in Cypher; callers
// pass values that were validated against a closed set.

func RelateQuery(fromLabel, toLabel, relType string) string {
	return fmt.Sprintf(`
		MERGE (a:%s {id: $from})
		MERGE (b:%s {id: $to})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.created_at = $created_at
		SET r.weight = $weight, r += $props
		RETURN type(r) AS type
	`, fromLabel, toLabel, relType)
}

// NeighborsQuery matches edges in both directions; an empty relType matches
// any type.
func NeighborsQuery(label, relType string) string {
	rel := "r"
	if relType != "" {
		rel = "r:" + relType
	}
	return fmt.Sprintf(`
		MATCH (n:%s {id: $id})-[%s]-(m)
		RETURN startNode(r).id AS from, endNode(r).id AS to, type(r) AS type,
			r.weight AS weight, properties(r) AS props
	`, label, rel)
}

func DeleteNodeQuery(label string) string {
	return fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		DETACH DELETE n
	`, label)
}
