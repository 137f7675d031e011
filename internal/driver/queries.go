package driver

// Every scene graph entity is a :RSGEntity vertex keyed by id. Parent edges
// become :HAS_CHILD relations, connection endpoints :SOURCE and :TARGET.
var IndexQueries = []string{
	"CREATE INDEX ON :RSGEntity(id);",
	"CREATE INDEX ON :RSGEntity(kind);",
}

const (
	SaveEntityQuery = `
		MERGE (n:RSGEntity {id: $id})
		SET n.kind = $kind,
			n.semantic_context = $semantic_context,
			n.attributes = $attributes,
			n.start = $start,
			n.end = $end
		RETURN n.id AS id
	`

	SaveParentEdgeQuery = `
		MATCH (p:RSGEntity {id: $parent_id})
		MATCH (c:RSGEntity {id: $child_id})
		MERGE (p)-[:HAS_CHILD]->(c)
	`

	DeleteParentEdgeQuery = `
		MATCH (p:RSGEntity {id: $parent_id})-[e:HAS_CHILD]->(c:RSGEntity {id: $child_id})
		DELETE e
	`

	SaveSourcesQuery = `
		MATCH (conn:RSGEntity {id: $id})
		UNWIND $ids AS sid
		MATCH (s:RSGEntity {id: sid})
		MERGE (conn)-[:SOURCE]->(s)
	`

	SaveTargetsQuery = `
		MATCH (conn:RSGEntity {id: $id})
		UNWIND $ids AS tid
		MATCH (t:RSGEntity {id: tid})
		MERGE (conn)-[:TARGET]->(t)
	`

	SetAttributesQuery = `
		MATCH (n:RSGEntity {id: $id})
		SET n.attributes = $attributes
	`

	SetTransformQuery = `
		MATCH (n:RSGEntity {id: $id})
		SET n.latest_stamp = $stamp,
			n.matrix = $matrix,
			n.unit = $unit
	`

	SetIntervalQuery = `
		MATCH (n:RSGEntity {id: $id})
		SET n.start = $start,
			n.end = $end
	`

	DeleteEntitiesQuery = `
		MATCH (n:RSGEntity)
		WHERE n.id IN $ids
		DETACH DELETE n
	`
)
