// CLAUDE:SUMMARY Versioned prompt templates: query synthesis, competitor discovery, metadata enrichment, query expansion.
package llm

// Prompt templates are versioned string resources. Their JSON output shapes
// are the parse contracts in parse.go; bump the version comment when the
// shape changes.

// QuerySynthesisSystem instructs the model to turn a research prompt into a
// diverse set of web-search queries. v2.
const QuerySynthesisSystem = `You are a search strategy generator for a technical knowledge base.
Analyze the user's request, extract every technology, framework, library, database, and tool mentioned, and generate effective web search queries covering each one.

Generate a MIX of query types:
- documentation and official sites (e.g. "FastAPI official documentation")
- video content: channels, long-form courses, playlists (e.g. "FastAPI YouTube channel", "FastAPI complete course")
- code repositories (e.g. "fastapi GitHub repository")

Rules:
1. For EACH detected technology create at least one documentation query, one video query, and one repository query.
2. Prefer video channels and long-form courses over individual clips.
3. Include concrete technical keywords from the request (e.g. "streaming", "websocket", "async").

Return ONLY a valid JSON object with this structure:
{"search_queries": ["...", "..."], "topics": ["..."], "keywords": ["..."]}

No markdown fences, no commentary, only the raw JSON object.`

// QuerySynthesisUser is the user-side template for query synthesis. It is
// formatted with the (possibly condensed) prompt and the recommended query
// count.
const QuerySynthesisUser = `User request: %q

Extract all technical components mentioned above, then generate %d diverse search queries covering every component. Return only the JSON object.`

// CompetitorPrompt asks for alternatives to detected technologies. v1.
const CompetitorPrompt = `For these technologies: %s

List 2-3 main competitors or alternatives for EACH technology.

Return ONLY a JSON object mapping each technology to its alternatives:
{"TechName": ["Alternative1", "Alternative2"]}

No markdown fences, no commentary.`

// EnrichmentPrompt extracts topical metadata from a chunk. v3.
const EnrichmentPrompt = `Extract metadata from this technical content. Return REAL, SPECIFIC information found in the text, never generic placeholders.

CONTENT:
%s

Extract:
1. topics (3-5): main subjects discussed
2. keywords (5-8): important technical terms found in the text
3. summary (one sentence, max 20 words)
4. concepts (3-5): technical concepts mentioned
5. difficulty: one of "beginner", "intermediate", "advanced"
6. languages: programming languages involved, if any
7. frameworks: frameworks or libraries involved, if any

Return ONLY a valid JSON object:
{"topics": [], "keywords": [], "summary": "", "concepts": [], "difficulty": "", "languages": [], "frameworks": []}

No markdown fences, no commentary.`

// ExpansionPrompt widens a short search query with related terms. v1.
const ExpansionPrompt = `Expand this search query with related technical terms and synonyms.
Keep it concise (max %d additional words).
Focus on technical keywords that would appear in documentation.

Original query: %s

Expanded query (add related terms only, keep original meaning):`
