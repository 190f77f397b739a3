package db

import "fmt"

// SchemaSQL returns the schema initialization SQL for the given embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- PASSAGE TABLE (one row per dataset paragraph)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS passage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON passage TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON passage TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON passage TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS passage_embedding ON passage FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- COLLECTION TABLE (embedding settings a passage set was built with)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS collection SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS embed_model ON collection TYPE string;
    DEFINE FIELD IF NOT EXISTS dimension ON collection TYPE int;
    DEFINE FIELD IF NOT EXISTS documents ON collection TYPE int;
    DEFINE FIELD IF NOT EXISTS updated_at ON collection TYPE datetime VALUE time::now();
`, dimension)
}
