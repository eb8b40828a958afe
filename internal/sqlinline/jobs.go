package sqlinline

const QInsertGenerationJob = `--sql 7d1e25f1-1992-41f5-9da0-2aeaf17df83b
insert into generation_jobs (
    id, owner_id, prompt, expanded_prompt, style, franchise,
    width, height, seed, variants, status, provider, model, metadata
)
values (
    $1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text,
    $7::int, $8::int, $9::bigint, coalesce($10::text[], '{}'::text[]), $11::text, $12::text, $13::text,
    coalesce($14::jsonb, '{}'::jsonb)
)
returning id::text, created_at;
`

const QSelectGenerationJob = `--sql 77a0bb01-4d06-456f-b6bb-ffb3149e2145
select
    id::text, owner_id, prompt, expanded_prompt, style, franchise,
    width, height, seed, variants, status, result_url, extra_urls, error_message,
    provider, model, operation_handle, source_file_handle, metadata,
    created_at, started_at, completed_at, updated_at
from generation_jobs
where id = $1::uuid;
`

// QUpdateGenerationJob only touches rows that are still queued or processing,
// and never overwrites an existing result_url.
const QUpdateGenerationJob = `--sql aa179d4f-4740-4dba-8ab8-4f05cadbd8c8
update generation_jobs
set status             = coalesce($2::text, status),
    result_url         = coalesce(result_url, $3::text),
    extra_urls         = coalesce($4::text[], extra_urls),
    error_message      = coalesce($5::text, error_message),
    provider           = coalesce($6::text, provider),
    model              = coalesce($7::text, model),
    operation_handle   = coalesce($8::text, operation_handle),
    source_file_handle = coalesce($9::text, source_file_handle),
    started_at         = coalesce($10::timestamptz, started_at),
    completed_at       = coalesce($11::timestamptz, completed_at),
    metadata           = metadata || coalesce($12::jsonb, '{}'::jsonb),
    updated_at         = now()
where id = $1::uuid
  and status in ('queued', 'processing');
`

const QSelectGenerationJobStatus = `--sql 3f19a82d-46ac-4593-97ee-414c79e341c2
select status
from generation_jobs
where id = $1::uuid;
`

const QClaimAnonymousJobs = `--sql 0a19648c-673b-437d-a727-21fc6c5d5e1a
update generation_jobs
set owner_id = $2::text,
    updated_at = now()
where owner_id is null
  and metadata->>'client_token' = $1::text;
`

const QListPendingBatchJobs = `--sql 29f63359-39fd-4734-affe-24e7da14403c
select
    id::text, owner_id, prompt, expanded_prompt, style, franchise,
    width, height, seed, variants, status, result_url, extra_urls, error_message,
    provider, model, operation_handle, source_file_handle, metadata,
    created_at, started_at, completed_at, updated_at
from generation_jobs
where status in ('queued', 'processing')
  and provider = 'batch'
order by created_at asc
limit $1::int;
`
