package sqlinline

// Queries against the durable jobs audit-trail table (§6 Persisted state
// layout's Postgres counterpart to the redis job:{id} hash — the live
// waiting/active lists themselves stay in redis; this table is an audit
// history of each job's status, error and result, updated as the job
// advances, with a complete_retention purge query. The queue's status and
// queue_stats operations read redis, not this table).

const QInsertJob = `--sql 8cc9f0e0-17fa-4ae3-9bc4-4fc472a67a25
insert into jobs (id, chat_ref, reply_ref, source_path, display_name, mime_type, size_bytes, model_id, submitter_id, submitter_label, status, attempts, error_message, result_json, enqueued_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`

const QUpdateJobStatus = `--sql 4dedcd36-c6f9-4d7e-b77d-121df5f06719
update jobs
set status = $2,
    updated_at = now(),
    error_message = coalesce($3, error_message),
    result_json = coalesce($4, result_json)
where id = $1;
`

const QGetJobByID = `--sql 93df6fa0-e08d-4d70-a44b-5822912c3d53
select id, chat_ref, reply_ref, source_path, display_name, mime_type, size_bytes, model_id, submitter_id, submitter_label, status, attempts, error_message, result_json, enqueued_at, updated_at
from jobs
where id = $1;
`

const QPurgeTerminal = `--sql 9d681451-9cf6-4774-b4be-f0f0be986847
with stale_succeeded as (
    select id from jobs
    where status = 'succeeded' and updated_at < now() - make_interval(secs => $3)
    order by updated_at desc
    offset $1
),
stale_failed as (
    select id from jobs
    where status = 'failed'
    order by updated_at desc
    offset $2
)
delete from jobs
where id in (select id from stale_succeeded union select id from stale_failed);
`
