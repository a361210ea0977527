package sqlinline

// integration_tokens holds one API key per adaptor provider:
//   provider text primary key, token text, properties jsonb, created_at, updated_at.

const QSelectIntegrationToken = `--sql 3c1e7f0a-52d4-4b8e-9a61-0d2f4c7be913
SELECT token
FROM integration_tokens
WHERE provider = $1::text;
`

const QUpsertIntegrationToken = `--sql b9d04a6e-1f37-4c25-8e0b-6a7d2e91f4c8
INSERT INTO integration_tokens (provider, token, properties, created_at, updated_at)
VALUES ($1::text, $2::text, COALESCE($3::jsonb, '{}'::jsonb), now(), now())
ON CONFLICT (provider) DO UPDATE SET
    token = EXCLUDED.token,
    properties = integration_tokens.properties || EXCLUDED.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql 5e82c1d7-0a49-4f63-b2e8-91c7d4a06f3b
DELETE FROM integration_tokens
WHERE provider = $1::text;
`
