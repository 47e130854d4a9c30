package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jLoader loads implementors tables into a Neo4j database using batch
// UNWIND queries.
type Neo4jLoader struct {
	driver neo4j.DriverWithContext
	ctx    context.Context
	log    *slog.Logger
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader.
func NewNeo4jLoader(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable at %s: %w", uri, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jLoader{driver: driver, ctx: ctx, log: logger.With("component", "neo4j")}, nil
}

// Close releases the underlying Neo4j driver resources.
func (l *Neo4jLoader) Close() {
	l.driver.Close(l.ctx)
}

// runCypher runs a single Cypher statement with optional parameters.
func (l *Neo4jLoader) runCypher(cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(l.ctx, l.driver, cypher, params, neo4j.EagerResultTransformer)
	return err
}

// CleanGraph removes all previously loaded implementor nodes and relationships.
func (l *Neo4jLoader) CleanGraph() error {
	l.log.Info("cleaning existing implementor graph")
	queries := []string{
		"MATCH ()-[r:IMPLEMENTS]->(:Trait) DELETE r",
		"MATCH (:ImplType)-[r:IN_PACKAGE]->() DELETE r",
		"MATCH (n:ImplPackage) DETACH DELETE n",
		"MATCH (n:ImplType) DETACH DELETE n",
		"MATCH (n:Trait) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndexes ensures the required Neo4j indexes exist.
func (l *Neo4jLoader) CreateIndexes() error {
	l.log.Info("creating indexes")
	indexes := []string{
		"CREATE INDEX impl_pkg_name IF NOT EXISTS FOR (n:ImplPackage) ON (n.name)",
		"CREATE INDEX impl_type_path IF NOT EXISTS FOR (n:ImplType) ON (n.path)",
		"CREATE INDEX impl_trait_path IF NOT EXISTS FOR (n:Trait) ON (n.path)",
	}
	for _, q := range indexes {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadPackages upserts ImplPackage nodes for the collected packages.
func (l *Neo4jLoader) LoadPackages(pkgs map[string]*PackageNode) error {
	l.log.Info("loading packages", "count", len(pkgs))
	return l.runCypher(
		`UNWIND $batch AS row
		 MERGE (n:ImplPackage {name: row.path})
		 SET n.short_name = row.name, n.dir = row.dir`,
		map[string]any{"batch": packageRows(pkgs)},
	)
}

func packageRows(pkgs map[string]*PackageNode) []map[string]any {
	batch := make([]map[string]any, 0, len(pkgs))
	for _, key := range sortedKeys(pkgs) {
		p := pkgs[key]
		batch = append(batch, map[string]any{
			"path": p.ImportPath,
			"name": p.Name,
			"dir":  p.Dir,
		})
	}
	return batch
}

// LoadInterfaces upserts Trait nodes with their declaration details.
func (l *Neo4jLoader) LoadInterfaces(ifaces map[string]*InterfaceNode) error {
	l.log.Info("loading interfaces", "count", len(ifaces))
	return l.runCypher(
		`UNWIND $batch AS row
		 MERGE (n:Trait {path: row.path})
		 SET n.name = row.name, n.package = row.pkg, n.file = row.file,
		     n.line = row.line, n.exported = row.exported,
		     n.method_count = row.methods, n.extern = row.extern`,
		map[string]any{"batch": interfaceRows(ifaces)},
	)
}

func interfaceRows(ifaces map[string]*InterfaceNode) []map[string]any {
	batch := make([]map[string]any, 0, len(ifaces))
	for _, key := range sortedKeys(ifaces) {
		i := ifaces[key]
		batch = append(batch, map[string]any{
			"path": i.Key(), "name": i.Name, "pkg": i.Package,
			"file": i.File, "line": i.Line, "exported": i.Exported,
			"methods": i.Methods, "extern": i.Extern,
		})
	}
	return batch
}

// tableRows flattens a table into UNWIND rows, one per implementing type path.
func tableRows(t Table) []map[string]any {
	rows := make([]map[string]any, 0, t.Len())
	for _, pkg := range t.Packages() {
		for pos, imp := range t[pkg] {
			for _, typ := range imp.Types {
				rows = append(rows, map[string]any{
					"pkg":       pkg,
					"type":      typ,
					"text":      imp.Text,
					"plain":     PlainText(imp.Text),
					"synthetic": imp.Synthetic,
					"position":  pos,
				})
			}
		}
	}
	return rows
}

// loadTableCypher upserts one IMPLEMENTS edge per (package, position); a type
// may appear several times in one package, e.g. From<u8> and From<u16>.
const loadTableCypher = `UNWIND $batch AS row
	 MERGE (p:ImplPackage {name: row.pkg})
	 MERGE (ty:ImplType {path: row.type})
	 MERGE (ty)-[:IN_PACKAGE]->(p)
	 WITH ty, row
	 MATCH (tr:Trait {path: $trait})
	 MERGE (ty)-[r:IMPLEMENTS {package: row.pkg, position: row.position}]->(tr)
	 SET r.text = row.text, r.plain = row.plain, r.synthetic = row.synthetic`

// LoadTable replaces the IMPLEMENTS edges of trait for every package in t and
// upserts the packages, types and trait involved.
func (l *Neo4jLoader) LoadTable(trait string, t Table) error {
	rows := tableRows(t)
	l.log.Debug("loading table", "trait", trait, "rows", len(rows))

	err := l.runCypher(
		`MERGE (tr:Trait {path: $trait})
		 WITH tr
		 MATCH (ty:ImplType)-[r:IMPLEMENTS]->(tr)
		 WHERE r.package IN $pkgs
		 DELETE r`,
		map[string]any{"trait": trait, "pkgs": t.Packages()},
	)
	if err != nil {
		return fmt.Errorf("clear %s: %w", trait, err)
	}
	if len(rows) == 0 {
		return nil
	}
	err = l.runCypher(loadTableCypher,
		map[string]any{"trait": trait, "batch": rows},
	)
	if err != nil {
		return fmt.Errorf("load %s: %w", trait, err)
	}
	return nil
}
