package sqlinline

// Batch queue. Status moves QUEUED -> RUNNING -> SUCCEEDED | FAILED; a RUNNING
// row whose worker vanished is requeued by QRequeueStaleBatches.

const QEnqueueBatch = `--sql 599bf9f4-2c77-4e37-8301-4e91790fa270
insert into generation_batches (
    id,
    project_id,
    product,
    stage,
    status,
    request_json,
    attempts,
    created_at,
    updated_at
)
values (
    $1::uuid,
    $2::text,
    $3::text,
    $4::text,
    'QUEUED',
    $5::jsonb,
    0,
    now(),
    now()
)
returning created_at;
`

const QWorkerClaimBatch = `--sql 4a35a2eb-90d2-4be2-a876-b4d4c74289b0
with next_batch as (
    select id
    from generation_batches
    where status = 'QUEUED'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update generation_batches
    set status = 'RUNNING', attempts = attempts + 1, updated_at = now()
    where id in (select id from next_batch)
    returning id, project_id, request_json, attempts, created_at
)
select * from updated;
`

const QFinishBatch = `--sql 18f5cb69-5fc4-419d-b058-b15d42bd27cb
update generation_batches
set status = $2::text,
    summary_json = $3::jsonb,
    error = nullif($4::text, ''),
    updated_at = now()
where id = $1::uuid
  and status = 'RUNNING';
`

const QSelectBatch = `--sql 4c21122e-a05b-47b8-9e27-a29bf1a59e4a
select id, project_id, status, request_json, coalesce(summary_json, 'null'::jsonb), coalesce(error, ''), attempts, created_at, updated_at
from generation_batches
where id = $1::uuid
  and project_id = $2::text;
`

const QRequeueStaleBatches = `--sql 36d8f810-8ed5-4465-ba63-b23f6d338b43
update generation_batches
set status = 'QUEUED', updated_at = now()
where status = 'RUNNING'
  and updated_at < now() - make_interval(secs => $1::int)
  and attempts < $2::int;
`
